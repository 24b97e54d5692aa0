package seedfetch

import (
	"errors"
	"strconv"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Preference keys.
const (
	PrefSeedBase64           = "variations_seed_base64"
	PrefSeedSignature        = "variations_seed_signature"
	PrefSeedCountry          = "variations_seed_country"
	PrefSeedDate             = "variations_seed_date"
	PrefSeedIsGzipCompressed = "variations_seed_is_gzip_compressed"
	PrefInitialized          = "variations_initialized"
	PrefSeedStored           = "variations_seed_native_stored"
)

const prefPrefix = "pref:"

var seedPrefs = []string{
	PrefSeedBase64,
	PrefSeedSignature,
	PrefSeedCountry,
	PrefSeedDate,
	PrefSeedIsGzipCompressed,
}

// SeedStore is the persistence the fetcher needs.
type SeedStore interface {
	Initialized() (bool, error)
	SeedStored() (bool, error)
	SaveSeed(SeedState) error
	MarkInitialized() error
}

// Store is a string-keyed preference store on top of leveldb.
type Store struct {
	db *leveldb.DB
}

var _ SeedStore = (*Store)(nil)

func OpenStore(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// OpenMemStore returns a store that lives only in memory.
func OpenMemStore() (*Store, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func prefKey(name string) []byte {
	return []byte(prefPrefix + name)
}

func (s *Store) GetString(name string) (string, bool, error) {
	b, err := s.db.Get(prefKey(name), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(b), true, nil
}

func (s *Store) GetBool(name string) (bool, error) {
	v, ok, err := s.GetString(name)
	if err != nil || !ok {
		return false, err
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, nil
	}
	return b, nil
}

func (s *Store) PutString(name, v string) error {
	return s.db.Put(prefKey(name), []byte(v), nil)
}

func (s *Store) PutBool(name string, v bool) error {
	return s.PutString(name, strconv.FormatBool(v))
}

func (s *Store) Initialized() (bool, error) {
	return s.GetBool(PrefInitialized)
}

func (s *Store) MarkInitialized() error {
	return s.PutBool(PrefInitialized, true)
}

// ResetInitialized allows the next FetchSeed to reach the server again.
func (s *Store) ResetInitialized() error {
	return s.db.Delete(prefKey(PrefInitialized), nil)
}

// SeedStored reports whether a consumer already took a fetched seed.
func (s *Store) SeedStored() (bool, error) {
	return s.GetBool(PrefSeedStored)
}

// SaveSeed writes all seed fields in one batch.
func (s *Store) SaveSeed(st SeedState) error {
	batch := new(leveldb.Batch)
	batch.Put(prefKey(PrefSeedBase64), []byte(st.PayloadBase64))
	batch.Put(prefKey(PrefSeedSignature), []byte(st.Signature))
	batch.Put(prefKey(PrefSeedCountry), []byte(st.Country))
	batch.Put(prefKey(PrefSeedDate), []byte(st.Date))
	batch.Put(prefKey(PrefSeedIsGzipCompressed), []byte(strconv.FormatBool(st.IsGzipCompressed)))
	return s.db.Write(batch, nil)
}

func (s *Store) LoadSeed() (SeedState, error) {
	var st SeedState
	var err error
	if st.PayloadBase64, _, err = s.GetString(PrefSeedBase64); err != nil {
		return SeedState{}, err
	}
	if st.Signature, _, err = s.GetString(PrefSeedSignature); err != nil {
		return SeedState{}, err
	}
	if st.Country, _, err = s.GetString(PrefSeedCountry); err != nil {
		return SeedState{}, err
	}
	if st.Date, _, err = s.GetString(PrefSeedDate); err != nil {
		return SeedState{}, err
	}
	if st.IsGzipCompressed, err = s.GetBool(PrefSeedIsGzipCompressed); err != nil {
		return SeedState{}, err
	}
	return st, nil
}

// HasSeed reports whether a usable first-run seed is stored.
func (s *Store) HasSeed() (bool, error) {
	st, err := s.LoadSeed()
	if err != nil {
		return false, err
	}
	return !st.Empty(), nil
}

// TakeSeed hands the stored seed to a consumer: it returns the seed, drops the
// seed fields and marks the seed as taken in a single write. An empty state is
// returned, and nothing is written, when no usable seed is stored.
func (s *Store) TakeSeed() (SeedState, error) {
	st, err := s.LoadSeed()
	if err != nil {
		return SeedState{}, err
	}
	if st.Empty() {
		return SeedState{}, nil
	}

	batch := new(leveldb.Batch)
	for _, name := range seedPrefs {
		batch.Delete(prefKey(name))
	}
	batch.Put(prefKey(PrefSeedStored), []byte(strconv.FormatBool(true)))
	if err := s.db.Write(batch, nil); err != nil {
		return SeedState{}, err
	}
	return st, nil
}

// Clear removes every preference.
func (s *Store) Clear() error {
	it := s.db.NewIterator(util.BytesPrefix([]byte(prefPrefix)), nil)
	defer it.Release()

	batch := new(leveldb.Batch)
	for it.Next() {
		batch.Delete(append([]byte(nil), it.Key()...))
	}
	if err := it.Error(); err != nil {
		return err
	}
	return s.db.Write(batch, nil)
}
