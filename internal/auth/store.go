package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/zalando/go-keyring"
)

const serviceName = "carbonledger"

// ErrNoCredentials is returned by Load when no credentials are stored.
// Callers treat it as "anonymous", never as a failure.
var ErrNoCredentials = errors.New("no credentials stored")

// Credentials holds the persisted session: tokens plus the cached user
// object returned by login. The user payload is opaque to this package.
type Credentials struct {
	AccessToken  string          `json:"auth_token"`
	RefreshToken string          `json:"refresh_token,omitempty"`
	User         json.RawMessage `json:"user,omitempty"`
}

// CredentialStore is the persistence boundary for session credentials.
// Implementations must return ErrNoCredentials from Load when nothing is
// stored rather than failing.
type CredentialStore interface {
	Load() (*Credentials, error)
	Save(creds *Credentials) error
	Clear() error
}

// Store persists credentials per origin, preferring the system keychain
// and falling back to a locked plaintext file.
type Store struct {
	origin      string
	useKeyring  bool
	fallbackDir string
}

// NewStore creates a credential store bound to an origin. Each origin
// (prod, staging, localhost) keeps independent credentials.
func NewStore(origin, fallbackDir string, noKeyring bool) *Store {
	if noKeyring {
		return &Store{origin: origin, useKeyring: false, fallbackDir: fallbackDir}
	}

	// Test if keyring is available
	testKey := serviceName + "::test"
	err := keyring.Set(serviceName, testKey, "test")
	if err == nil {
		_ = keyring.Delete(serviceName, testKey) // Best-effort cleanup
		return &Store{origin: origin, useKeyring: true, fallbackDir: fallbackDir}
	}
	fmt.Fprintf(os.Stderr, "warning: system keyring unavailable, credentials stored in plaintext at %s\n",
		filepath.Join(fallbackDir, "credentials.json"))
	return &Store{origin: origin, useKeyring: false, fallbackDir: fallbackDir}
}

// key returns the keyring key for the bound origin.
func (s *Store) key() string {
	return fmt.Sprintf("%s::%s", serviceName, s.origin)
}

// UsingKeyring returns true if the store is using the system keyring.
func (s *Store) UsingKeyring() bool {
	return s.useKeyring
}

// Load retrieves the stored credentials for the bound origin.
func (s *Store) Load() (*Credentials, error) {
	if s.useKeyring {
		return s.loadFromKeyring()
	}
	return s.loadFromFile()
}

// Save stores credentials for the bound origin.
func (s *Store) Save(creds *Credentials) error {
	if s.useKeyring {
		return s.saveToKeyring(creds)
	}
	return s.saveToFile(creds)
}

// Clear removes credentials for the bound origin. Clearing an empty store
// is not an error.
func (s *Store) Clear() error {
	if s.useKeyring {
		err := keyring.Delete(serviceName, s.key())
		if errors.Is(err, keyring.ErrNotFound) {
			return nil
		}
		return err
	}
	return s.deleteFromFile()
}

// Keyring methods

func (s *Store) loadFromKeyring() (*Credentials, error) {
	data, err := keyring.Get(serviceName, s.key())
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, ErrNoCredentials
		}
		return nil, fmt.Errorf("keyring read failed: %w", err)
	}

	var creds Credentials
	if err := json.Unmarshal([]byte(data), &creds); err != nil {
		return nil, fmt.Errorf("invalid stored credentials: %w", err)
	}
	return &creds, nil
}

func (s *Store) saveToKeyring(creds *Credentials) error {
	data, err := json.Marshal(creds)
	if err != nil {
		return err
	}
	return keyring.Set(serviceName, s.key(), string(data))
}

// File fallback methods
//
// The file holds a map of origin -> credentials so multiple environments
// share one file. Read-modify-write cycles take an advisory flock so
// concurrent clq processes don't clobber each other's logins.

// lockTimeout bounds how long a process waits for the credentials lock.
// On timeout the operation proceeds without the lock (fail-open) rather
// than hanging the CLI behind a crashed process.
const lockTimeout = 100 * time.Millisecond

func (s *Store) credentialsPath() string {
	return filepath.Join(s.fallbackDir, "credentials.json")
}

func (s *Store) lockPath() string {
	return filepath.Join(s.fallbackDir, ".credentials.lock")
}

// acquireLock obtains an exclusive lock on the credentials file. Returns
// nil without error when the lock cannot be acquired within lockTimeout.
func (s *Store) acquireLock() (*flock.Flock, error) {
	if err := os.MkdirAll(s.fallbackDir, 0700); err != nil {
		return nil, err
	}

	fl := flock.New(s.lockPath())

	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()

	// TryLockContext retries every 10ms until context expires
	locked, err := fl.TryLockContext(ctx, 10*time.Millisecond)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, nil
		}
		return nil, err
	}
	if !locked {
		return nil, nil
	}
	return fl, nil
}

func releaseLock(fl *flock.Flock) {
	if fl != nil {
		_ = fl.Unlock()
	}
}

func (s *Store) loadAllFromFile() (map[string]*Credentials, error) {
	data, err := os.ReadFile(s.credentialsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]*Credentials), nil
		}
		return nil, err
	}

	var all map[string]*Credentials
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("invalid credentials file: %w", err)
	}
	return all, nil
}

func (s *Store) saveAllToFile(all map[string]*Credentials) error {
	if err := os.MkdirAll(s.fallbackDir, 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return err
	}

	// Atomic write with randomized temp file name
	tmpFile, err := os.CreateTemp(s.fallbackDir, "credentials-*.json.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmpFile.Chmod(0600); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	// Unix: rename atomically replaces the destination.
	// Windows: rename fails when destination exists. Try rename first to
	// preserve the old file on unrelated errors; only remove+retry on failure.
	destPath := s.credentialsPath()
	if err := os.Rename(tmpPath, destPath); err != nil {
		if runtime.GOOS == "windows" {
			_ = os.Remove(destPath)
			return os.Rename(tmpPath, destPath)
		}
		os.Remove(tmpPath) // Clean up stale temp on failure
		return err
	}
	return nil
}

func (s *Store) loadFromFile() (*Credentials, error) {
	fl, err := s.acquireLock()
	if err != nil {
		return nil, err
	}
	defer releaseLock(fl)

	all, err := s.loadAllFromFile()
	if err != nil {
		return nil, err
	}

	creds, ok := all[s.origin]
	if !ok {
		return nil, ErrNoCredentials
	}
	return creds, nil
}

func (s *Store) saveToFile(creds *Credentials) error {
	fl, err := s.acquireLock()
	if err != nil {
		return err
	}
	defer releaseLock(fl)

	all, err := s.loadAllFromFile()
	if err != nil {
		return err
	}

	all[s.origin] = creds
	return s.saveAllToFile(all)
}

func (s *Store) deleteFromFile() error {
	fl, err := s.acquireLock()
	if err != nil {
		return err
	}
	defer releaseLock(fl)

	all, err := s.loadAllFromFile()
	if err != nil {
		return err
	}
	if _, ok := all[s.origin]; !ok {
		return nil
	}

	delete(all, s.origin)
	return s.saveAllToFile(all)
}

// MemStore is an in-memory CredentialStore for tests.
type MemStore struct {
	mu    sync.Mutex
	creds *Credentials
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{}
}

// Load returns a copy of the stored credentials.
func (m *MemStore) Load() (*Credentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.creds == nil {
		return nil, ErrNoCredentials
	}
	c := *m.creds
	return &c, nil
}

// Save stores a copy of creds.
func (m *MemStore) Save(creds *Credentials) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *creds
	m.creds = &c
	return nil
}

// Clear drops the stored credentials.
func (m *MemStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds = nil
	return nil
}

// NullStore is a CredentialStore with no backing storage: loads report no
// credentials and writes are discarded. Used when an access token is
// injected via the environment and persistence must be bypassed.
type NullStore struct{}

func (NullStore) Load() (*Credentials, error) { return nil, ErrNoCredentials }
func (NullStore) Save(*Credentials) error     { return nil }
func (NullStore) Clear() error                { return nil }
