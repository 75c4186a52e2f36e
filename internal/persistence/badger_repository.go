package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"quant-agent-go/internal/models"

	"github.com/dgraph-io/badger/v3"
)

const (
	strategyPrefix = "strategy/"
	agentPrefix    = "agent/"
	tradePrefix    = "trade/"
)

// badgerRepository is the BadgerDB implementation of Repository.
type badgerRepository struct {
	db *badger.DB
}

// NewBadgerRepository opens (or creates) a BadgerDB database at dbPath.
func NewBadgerRepository(dbPath string) (Repository, error) {
	opts := badger.DefaultOptions(dbPath)
	// Badger's own logger is noisy; DB errors still surface from operations.
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &badgerRepository{db: db}, nil
}

func (r *badgerRepository) setJSON(key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
}

func (r *badgerRepository) SaveStrategy(cfg models.StrategyConfig) error {
	if cfg.ID == "" {
		return errors.New("strategy id is empty")
	}
	return r.setJSON([]byte(strategyPrefix+cfg.ID), cfg)
}

func (r *badgerRepository) LoadStrategies() ([]models.StrategyConfig, error) {
	var out []models.StrategyConfig
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(strategyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var cfg models.StrategyConfig
				if err := json.Unmarshal(val, &cfg); err != nil {
					return err
				}
				out = append(out, cfg)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}

func (r *badgerRepository) DeleteStrategy(id string) error {
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(strategyPrefix + id))
	})
}

// mutateStrategy runs a read-modify-write cycle on one stored config
// inside a single transaction.
func (r *badgerRepository) mutateStrategy(id string, fn func(cfg *models.StrategyConfig) error) error {
	if id == "" {
		return errors.New("strategy id is empty")
	}
	key := []byte(strategyPrefix + id)
	return r.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return fmt.Errorf("strategy %q: %w", id, err)
		}
		var cfg models.StrategyConfig
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &cfg)
		}); err != nil {
			return err
		}
		if err := fn(&cfg); err != nil {
			return err
		}
		data, err := json.Marshal(cfg)
		if err != nil {
			return err
		}
		return txn.Set(key, data)
	})
}

func (r *badgerRepository) UpdateParams(id string, params map[string]float64) error {
	return r.mutateStrategy(id, func(cfg *models.StrategyConfig) error {
		for name, v := range params {
			cfg.ApplyParam(name, v)
		}
		return cfg.Validate()
	})
}

func (r *badgerRepository) ToggleStrategy(id string, enabled bool) error {
	return r.mutateStrategy(id, func(cfg *models.StrategyConfig) error {
		cfg.Enabled = enabled
		return nil
	})
}

func (r *badgerRepository) SaveAgentState(state models.AgentState) error {
	if state.Name == "" {
		return errors.New("agent name is empty")
	}
	return r.setJSON([]byte(agentPrefix+state.Name), state)
}

func (r *badgerRepository) LoadAgentState(name string) (*models.AgentState, error) {
	var state models.AgentState
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(agentPrefix + name))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &state)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil // no snapshot yet is not an error
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (r *badgerRepository) AppendTrade(trade models.TradeRecord) error {
	if trade.ID == "" {
		return errors.New("trade id is empty")
	}
	key := fmt.Sprintf("%s%s/%d/%s", tradePrefix, trade.Symbol, trade.ExitTime.UnixNano(), trade.ID)
	return r.setJSON([]byte(key), trade)
}

func (r *badgerRepository) LoadTrades(symbol string) ([]models.TradeRecord, error) {
	prefix := tradePrefix
	if symbol != "" {
		prefix = tradePrefix + symbol + "/"
	}
	var out []models.TradeRecord
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().Key())
			if symbol == "" && !strings.HasPrefix(key, tradePrefix) {
				continue
			}
			err := it.Item().Value(func(val []byte) error {
				var tr models.TradeRecord
				if err := json.Unmarshal(val, &tr); err != nil {
					return err
				}
				out = append(out, tr)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}

func (r *badgerRepository) Close() error {
	return r.db.Close()
}
