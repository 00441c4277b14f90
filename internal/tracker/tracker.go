// Package tracker persists local-to-remote id mappings in a durable embedded
// store so an interrupted reconciliation run can resume without re-creating
// records. Writes are flushed before the caller proceeds.
package tracker

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/shopmonkeyus/go-common/logger"
	"github.com/tidwall/buntdb"
)

const mappingPrefix = "mapping:"

// MappingEntry is one line of the operator-facing mapping log.
type MappingEntry struct {
	Entity   string `json:"entity"`
	LocalID  int    `json:"local_id"`
	RemoteID int    `json:"remote_id"`
}

// Config configures a tracker.
type Config struct {
	Logger logger.Logger
	Dir    string

	// LogPath, when set, mirrors every stored mapping to a JSONL file.
	LogPath string
}

// Tracker is the durable mapping store.
type Tracker struct {
	logger  logger.Logger
	db      *buntdb.DB
	logFile *os.File
	once    sync.Once
}

// FilenameFromDir returns the mapping database path for a package directory.
func FilenameFromDir(dir string) string {
	return filepath.Join(dir, "mappings.db")
}

// New opens (or creates) the mapping store under config.Dir. The sync policy
// is per-write: a mapping must survive a process kill immediately after Put
// returns.
func New(config Config) (*Tracker, error) {
	db, err := buntdb.Open(FilenameFromDir(config.Dir))
	if err != nil {
		return nil, fmt.Errorf("failed to open mapping db: %w", err)
	}
	var dbcfg buntdb.Config
	if err := db.ReadConfig(&dbcfg); err != nil {
		return nil, fmt.Errorf("failed to read db config: %w", err)
	}
	dbcfg.SyncPolicy = buntdb.Always
	if err := db.SetConfig(dbcfg); err != nil {
		return nil, fmt.Errorf("failed to set db config: %w", err)
	}
	t := &Tracker{
		db:     db,
		logger: config.Logger.WithPrefix("[tracker]"),
	}
	if config.LogPath != "" {
		f, err := os.OpenFile(config.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to open mapping log: %w", err)
		}
		t.logFile = f
	}
	return t, nil
}

// Close will close the tracker and the underlying database.
func (t *Tracker) Close() error {
	t.logger.Debug("closing")
	t.once.Do(func() {
		t.db.Shrink()
		t.db.Close()
		if t.logFile != nil {
			t.logFile.Close()
		}
	})
	t.logger.Debug("closed")
	return nil
}

func mappingKey(entity string, localID int) string {
	return mappingPrefix + entity + ":" + strconv.Itoa(localID)
}

// Get returns the remote id mapped to a local id, if recorded.
func (t *Tracker) Get(entity string, localID int) (int, bool, error) {
	var remoteID int
	var found bool
	err := t.db.View(func(tx *buntdb.Tx) error {
		val, err := tx.Get(mappingKey(entity, localID), false)
		if err != nil {
			if err == buntdb.ErrNotFound {
				return nil
			}
			return err
		}
		remoteID, err = strconv.Atoi(val)
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return 0, false, fmt.Errorf("failed to get mapping: %w", err)
	}
	return remoteID, found, nil
}

// Put durably records a local-to-remote mapping. It returns only after the
// write has been synced, and appends to the JSONL mirror when configured.
func (t *Tracker) Put(entity string, localID, remoteID int) error {
	err := t.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(mappingKey(entity, localID), strconv.Itoa(remoteID), nil)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to put mapping: %w", err)
	}
	if t.logFile != nil {
		buf, err := json.Marshal(MappingEntry{Entity: entity, LocalID: localID, RemoteID: remoteID})
		if err != nil {
			return fmt.Errorf("failed to encode mapping entry: %w", err)
		}
		if _, err := t.logFile.Write(append(buf, '\n')); err != nil {
			return fmt.Errorf("failed to append mapping log: %w", err)
		}
		if err := t.logFile.Sync(); err != nil {
			return fmt.Errorf("failed to sync mapping log: %w", err)
		}
	}
	t.logger.Trace("mapped %s %d -> %d", entity, localID, remoteID)
	return nil
}

// Entity returns every mapping recorded for an entity.
func (t *Tracker) Entity(entity string) (map[int]int, error) {
	prefix := mappingPrefix + entity + ":"
	mappings := make(map[int]int)
	err := t.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(prefix+"*", func(key, value string) bool {
			localID, err := strconv.Atoi(strings.TrimPrefix(key, prefix))
			if err != nil {
				return true
			}
			remoteID, err := strconv.Atoi(value)
			if err != nil {
				return true
			}
			mappings[localID] = remoteID
			return true
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan mappings: %w", err)
	}
	return mappings, nil
}

// All returns every recorded mapping grouped by entity.
func (t *Tracker) All() (map[string]map[int]int, error) {
	mappings := make(map[string]map[int]int)
	err := t.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(mappingPrefix+"*", func(key, value string) bool {
			rest := strings.TrimPrefix(key, mappingPrefix)
			sep := strings.LastIndex(rest, ":")
			if sep < 0 {
				return true
			}
			entity := rest[:sep]
			localID, err := strconv.Atoi(rest[sep+1:])
			if err != nil {
				return true
			}
			remoteID, err := strconv.Atoi(value)
			if err != nil {
				return true
			}
			if mappings[entity] == nil {
				mappings[entity] = make(map[int]int)
			}
			mappings[entity][localID] = remoteID
			return true
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan mappings: %w", err)
	}
	return mappings, nil
}
