package journal

import (
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	ldbErrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/vzex/dog-homa/protocol"
)

var options = opt.Options{
	Compression: opt.NoCompression,
	WriteBuffer: 4 * opt.MiB,
}

// LevelDB keeps outcomes in a leveldb database keyed by message id.
type LevelDB struct {
	ldb *leveldb.DB
}

// OpenLevelDB opens or creates the journal at path.
func OpenLevelDB(path string) (*LevelDB, error) {
	ldb, err := leveldb.OpenFile(path, &options)

	// If the database is corrupted, attempt to recover.
	if _, corrupted := err.(*ldbErrors.ErrCorrupted); corrupted {
		log.Warnf("journal corruption detected at %s: %s", path, err)
		ldb, err = leveldb.RecoverFile(path, &options)
		if err == nil {
			log.Warnf("journal at %s recovered", path)
		}
	}
	if err != nil {
		return nil, errors.Wrapf(err, "open journal %s", path)
	}
	return &LevelDB{ldb: ldb}, nil
}

// OpenLevelDBStorage opens a journal on an existing leveldb storage.
func OpenLevelDBStorage(stor storage.Storage) (*LevelDB, error) {
	ldb, err := leveldb.Open(stor, &options)
	if err != nil {
		return nil, errors.Wrap(err, "open journal")
	}
	return &LevelDB{ldb: ldb}, nil
}

// Record stores outcome, replacing any earlier outcome of the same message.
func (db *LevelDB) Record(outcome Outcome) error {
	value, err := encodeOutcome(&outcome)
	if err != nil {
		return err
	}
	return errors.Wrapf(db.ldb.Put(encodeKey(outcome.Id), value, nil), "record %s", outcome.Id)
}

// Get returns the outcome of message id. ok is false when none was recorded.
func (db *LevelDB) Get(id protocol.MessageId) (outcome Outcome, ok bool, err error) {
	value, err := db.ldb.Get(encodeKey(id), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return Outcome{}, false, nil
		}
		return Outcome{}, false, errors.WithStack(err)
	}
	outcome, err = decodeOutcome(id, value)
	if err != nil {
		return Outcome{}, false, err
	}
	return outcome, true, nil
}

// ForEach calls fn for the outcomes of transportId in sequence order, all
// transports when transportId is zero. Iteration stops at the first error.
func (db *LevelDB) ForEach(transportId uint64, fn func(Outcome) error) error {
	var slice *util.Range
	if transportId != 0 {
		slice = util.BytesPrefix(encodeKey(protocol.MessageId{TransportId: transportId})[:8])
	}
	iter := db.ldb.NewIterator(slice, nil)
	defer iter.Release()
	for iter.Next() {
		id, err := decodeKey(iter.Key())
		if err != nil {
			return err
		}
		outcome, err := decodeOutcome(id, iter.Value())
		if err != nil {
			return err
		}
		if err := fn(outcome); err != nil {
			return err
		}
	}
	return errors.WithStack(iter.Error())
}

func (db *LevelDB) Close() error {
	return db.ldb.Close()
}
