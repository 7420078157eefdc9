package repository

import (
	"database/sql"
	"errors"
	"time"

	"optionscore/internal/models"
)

// Credential repository errors.
var (
	ErrCredentialNotFound = errors.New("broker credential not found")
	ErrCredentialExists   = errors.New("broker credential already exists")
)

// CredentialRepository persists encrypted broker credentials. Values are
// encrypted by the service layer before they reach this repository.
type CredentialRepository struct {
	db *sql.DB
}

// NewCredentialRepository creates the repository.
func NewCredentialRepository(db *sql.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

const credentialColumns = `id, broker, api_key, api_secret, totp_seed, connected,
	last_error, updated_at, created_at`

// Create inserts one broker credential row.
func (r *CredentialRepository) Create(c *models.BrokerCredential) error {
	query := `
		INSERT INTO broker_credentials (broker, api_key, api_secret, totp_seed,
			connected, last_error, updated_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now

	err := r.db.QueryRow(
		query,
		c.Broker,
		c.APIKey,
		c.APISecret,
		c.TOTPSeed,
		c.Connected,
		c.LastError,
		c.UpdatedAt,
		c.CreatedAt,
	).Scan(&c.ID)
	if isUniqueViolation(err) {
		return ErrCredentialExists
	}
	return err
}

func scanCredential(scanner interface{ Scan(...interface{}) error }) (*models.BrokerCredential, error) {
	c := &models.BrokerCredential{}
	err := scanner.Scan(
		&c.ID,
		&c.Broker,
		&c.APIKey,
		&c.APISecret,
		&c.TOTPSeed,
		&c.Connected,
		&c.LastError,
		&c.UpdatedAt,
		&c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// GetByBroker returns the credential row for a broker name.
func (r *CredentialRepository) GetByBroker(broker string) (*models.BrokerCredential, error) {
	c, err := scanCredential(r.db.QueryRow(
		`SELECT `+credentialColumns+` FROM broker_credentials WHERE broker = $1`, broker))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCredentialNotFound
	}
	return c, err
}

// GetAll returns every stored credential.
func (r *CredentialRepository) GetAll() ([]*models.BrokerCredential, error) {
	rows, err := r.db.Query(`SELECT ` + credentialColumns + ` FROM broker_credentials ORDER BY broker`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.BrokerCredential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateKeys replaces the encrypted key material.
func (r *CredentialRepository) UpdateKeys(broker, apiKey, apiSecret, totpSeed string) error {
	res, err := r.db.Exec(`
		UPDATE broker_credentials
		SET api_key = $1, api_secret = $2, totp_seed = $3, updated_at = $4
		WHERE broker = $5`,
		apiKey, apiSecret, totpSeed, time.Now(), broker)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrCredentialNotFound
	}
	return nil
}

// UpdateConnection records the connect/disconnect state and last error.
func (r *CredentialRepository) UpdateConnection(broker string, connected bool, lastError string) error {
	res, err := r.db.Exec(`
		UPDATE broker_credentials
		SET connected = $1, last_error = $2, updated_at = $3
		WHERE broker = $4`,
		connected, lastError, time.Now(), broker)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrCredentialNotFound
	}
	return nil
}

// Delete removes a credential row.
func (r *CredentialRepository) Delete(broker string) error {
	res, err := r.db.Exec(`DELETE FROM broker_credentials WHERE broker = $1`, broker)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrCredentialNotFound
	}
	return nil
}
