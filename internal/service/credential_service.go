package service

import (
	"errors"

	"optionscore/internal/models"
	"optionscore/internal/repository"
	"optionscore/pkg/crypto"
	"optionscore/pkg/utils"
)

// Credential service errors.
var (
	ErrCredentialNotFound = errors.New("broker credential not found")
	ErrInvalidCredential  = errors.New("invalid broker credential")
)

// CredentialService manages broker credentials: validation, AES-256-GCM
// encryption at rest, and decryption for login. Plaintext key material
// never reaches the repository.
type CredentialService struct {
	credRepo      CredentialRepositoryInterface
	encryptionKey string
	log           *utils.Logger
}

// NewCredentialService creates the service with the config's AES key.
func NewCredentialService(credRepo CredentialRepositoryInterface, encryptionKey string, log *utils.Logger) *CredentialService {
	return &CredentialService{
		credRepo:      credRepo,
		encryptionKey: encryptionKey,
		log:           log.WithComponent("credentials"),
	}
}

// Store validates and encrypts broker credentials, then persists them.
func (s *CredentialService) Store(broker, apiKey, apiSecret, totpSeed string) error {
	if err := utils.ValidateAPIKey(apiKey); err != nil {
		return errors.Join(ErrInvalidCredential, err)
	}
	if err := utils.ValidateAPISecret(apiSecret); err != nil {
		return errors.Join(ErrInvalidCredential, err)
	}

	encKey, err := crypto.EncryptWithKeyString(apiKey, s.encryptionKey)
	if err != nil {
		return err
	}
	encSecret, err := crypto.EncryptWithKeyString(apiSecret, s.encryptionKey)
	if err != nil {
		return err
	}
	encSeed := ""
	if totpSeed != "" {
		if encSeed, err = crypto.EncryptWithKeyString(totpSeed, s.encryptionKey); err != nil {
			return err
		}
	}

	cred := &models.BrokerCredential{
		Broker:    broker,
		APIKey:    encKey,
		APISecret: encSecret,
		TOTPSeed:  encSeed,
	}
	err = s.credRepo.Create(cred)
	if errors.Is(err, repository.ErrCredentialExists) {
		return s.credRepo.UpdateKeys(broker, encKey, encSecret, encSeed)
	}
	return err
}

// Load decrypts the stored credentials for broker login.
func (s *CredentialService) Load(broker string) (apiKey, apiSecret, totpSeed string, err error) {
	cred, err := s.credRepo.GetByBroker(broker)
	if errors.Is(err, repository.ErrCredentialNotFound) {
		return "", "", "", ErrCredentialNotFound
	}
	if err != nil {
		return "", "", "", err
	}

	if apiKey, err = crypto.DecryptWithKeyString(cred.APIKey, s.encryptionKey); err != nil {
		return "", "", "", err
	}
	if apiSecret, err = crypto.DecryptWithKeyString(cred.APISecret, s.encryptionKey); err != nil {
		return "", "", "", err
	}
	if cred.TOTPSeed != "" {
		if totpSeed, err = crypto.DecryptWithKeyString(cred.TOTPSeed, s.encryptionKey); err != nil {
			return "", "", "", err
		}
	}
	return apiKey, apiSecret, totpSeed, nil
}

// MarkConnected records a successful login.
func (s *CredentialService) MarkConnected(broker string) error {
	return s.credRepo.UpdateConnection(broker, true, "")
}

// MarkDisconnected records a failed or closed session.
func (s *CredentialService) MarkDisconnected(broker string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return s.credRepo.UpdateConnection(broker, false, msg)
}

// List returns stored credentials; encrypted fields stay opaque.
func (s *CredentialService) List() ([]*models.BrokerCredential, error) {
	return s.credRepo.GetAll()
}

// Remove deletes a stored credential.
func (s *CredentialService) Remove(broker string) error {
	err := s.credRepo.Delete(broker)
	if errors.Is(err, repository.ErrCredentialNotFound) {
		return ErrCredentialNotFound
	}
	return err
}
