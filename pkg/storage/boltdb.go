package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/daybreaklabs/daybreak/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketChallenges         = []byte("challenges")
	bucketPings              = []byte("pings")
	bucketPaymentAttempts    = []byte("payment_attempts")
	bucketAttemptByChallenge = []byte("payment_attempts_by_challenge")
	bucketNotifications      = []byte("notifications")
)

// BoltStore implements Store using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "daybreak.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketChallenges,
			bucketPings,
			bucketPaymentAttempts,
			bucketAttemptByChallenge,
			bucketNotifications,
		}

		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Challenge operations

func (s *BoltStore) CreateChallenge(ch *types.Challenge) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketChallenges)
		data, err := json.Marshal(ch)
		if err != nil {
			return err
		}
		return b.Put([]byte(ch.ID), data)
	})
}

func (s *BoltStore) GetChallenge(id string) (*types.Challenge, error) {
	var ch types.Challenge
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketChallenges)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("challenge %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &ch)
	})
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

func (s *BoltStore) ListChallenges() ([]*types.Challenge, error) {
	var challenges []*types.Challenge
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketChallenges)
		return b.ForEach(func(k, v []byte) error {
			var ch types.Challenge
			if err := json.Unmarshal(v, &ch); err != nil {
				return err
			}
			challenges = append(challenges, &ch)
			return nil
		})
	})
	return challenges, err
}

func (s *BoltStore) ListExpiredChallenges(now time.Time) ([]*types.Challenge, error) {
	var expired []*types.Challenge
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketChallenges)
		return b.ForEach(func(k, v []byte) error {
			var ch types.Challenge
			if err := json.Unmarshal(v, &ch); err != nil {
				return err
			}
			pre := ch.Status == types.ChallengeStatusScheduled || ch.Status == types.ChallengeStatusActive
			if pre && ch.EndAt.Before(now) {
				expired = append(expired, &ch)
			}
			return nil
		})
	})
	return expired, err
}

func (s *BoltStore) ListUnsettledFailures() ([]*types.Challenge, error) {
	var failures []*types.Challenge
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketChallenges)
		return b.ForEach(func(k, v []byte) error {
			var ch types.Challenge
			if err := json.Unmarshal(v, &ch); err != nil {
				return err
			}
			if ch.Status == types.ChallengeStatusFail {
				failures = append(failures, &ch)
			}
			return nil
		})
	})
	return failures, err
}

// TransitionChallenge performs the conditional status write that
// linearizes concurrent transitions. Read, compare, mutate, and write
// happen inside one bolt transaction.
func (s *BoltStore) TransitionChallenge(id string, expected types.ChallengeStatus, mutate func(*types.Challenge) error) (*types.Challenge, error) {
	var out *types.Challenge
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketChallenges)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("challenge %s: %w", id, ErrNotFound)
		}

		var ch types.Challenge
		if err := json.Unmarshal(data, &ch); err != nil {
			return err
		}

		if ch.Status != expected {
			return fmt.Errorf("challenge %s is %s, expected %s: %w", id, ch.Status, expected, ErrStatusConflict)
		}

		if err := mutate(&ch); err != nil {
			return err
		}
		ch.Version++

		updated, err := json.Marshal(&ch)
		if err != nil {
			return err
		}
		if err := b.Put([]byte(id), updated); err != nil {
			return err
		}
		out = &ch
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Ping operations (append-only)

func (s *BoltStore) CreatePing(ping *types.LocationPing) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPings)
		data, err := json.Marshal(ping)
		if err != nil {
			return err
		}
		// Keyed by challenge + ping id so per-challenge scans are a
		// prefix walk.
		return b.Put([]byte(ping.ChallengeID+"/"+ping.ID), data)
	})
}

func (s *BoltStore) ListPingsByChallenge(challengeID string) ([]*types.LocationPing, error) {
	var pings []*types.LocationPing
	prefix := []byte(challengeID + "/")
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketPings).Cursor()
		for k, v := c.Seek(prefix); k != nil && len(k) >= len(prefix) && string(k[:len(prefix)]) == string(prefix); k, v = c.Next() {
			var ping types.LocationPing
			if err := json.Unmarshal(v, &ping); err != nil {
				return err
			}
			pings = append(pings, &ping)
		}
		return nil
	})
	return pings, err
}

// Payment attempt operations

// CreatePaymentAttempt inserts the attempt and its challenge index
// entry in one transaction. A second attempt for the same challenge
// fails with ErrDuplicateAttempt, which is what makes "at most one
// charge per challenge" hold under racing settlers.
func (s *BoltStore) CreatePaymentAttempt(attempt *types.PaymentAttempt) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		idx := tx.Bucket(bucketAttemptByChallenge)
		if existing := idx.Get([]byte(attempt.ChallengeID)); existing != nil {
			return fmt.Errorf("challenge %s: %w", attempt.ChallengeID, ErrDuplicateAttempt)
		}

		b := tx.Bucket(bucketPaymentAttempts)
		data, err := json.Marshal(attempt)
		if err != nil {
			return err
		}
		if err := b.Put([]byte(attempt.ID), data); err != nil {
			return err
		}
		return idx.Put([]byte(attempt.ChallengeID), []byte(attempt.ID))
	})
}

func (s *BoltStore) GetPaymentAttempt(id string) (*types.PaymentAttempt, error) {
	var attempt types.PaymentAttempt
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPaymentAttempts)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("payment attempt %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &attempt)
	})
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (s *BoltStore) GetPaymentAttemptByChallenge(challengeID string) (*types.PaymentAttempt, error) {
	var attempt types.PaymentAttempt
	err := s.db.View(func(tx *bolt.Tx) error {
		idx := tx.Bucket(bucketAttemptByChallenge)
		attemptID := idx.Get([]byte(challengeID))
		if attemptID == nil {
			return fmt.Errorf("attempt for challenge %s: %w", challengeID, ErrNotFound)
		}
		data := tx.Bucket(bucketPaymentAttempts).Get(attemptID)
		if data == nil {
			return fmt.Errorf("payment attempt %s: %w", attemptID, ErrNotFound)
		}
		return json.Unmarshal(data, &attempt)
	})
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (s *BoltStore) ListDueRetries(now time.Time) ([]*types.PaymentAttempt, error) {
	var due []*types.PaymentAttempt
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPaymentAttempts)
		return b.ForEach(func(k, v []byte) error {
			var attempt types.PaymentAttempt
			if err := json.Unmarshal(v, &attempt); err != nil {
				return err
			}
			if attempt.Status != types.PaymentStatusFailed {
				return nil
			}
			if attempt.Exhausted() {
				return nil
			}
			if attempt.NextRetryAt.After(now) {
				return nil
			}
			due = append(due, &attempt)
			return nil
		})
	})
	return due, err
}

func (s *BoltStore) UpdatePaymentAttemptIf(id string, expected types.PaymentStatus, mutate func(*types.PaymentAttempt) error) (*types.PaymentAttempt, error) {
	var out *types.PaymentAttempt
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPaymentAttempts)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("payment attempt %s: %w", id, ErrNotFound)
		}

		var attempt types.PaymentAttempt
		if err := json.Unmarshal(data, &attempt); err != nil {
			return err
		}

		if attempt.Status != expected {
			return fmt.Errorf("payment attempt %s is %s, expected %s: %w", id, attempt.Status, expected, ErrStatusConflict)
		}

		if err := mutate(&attempt); err != nil {
			return err
		}

		updated, err := json.Marshal(&attempt)
		if err != nil {
			return err
		}
		if err := b.Put([]byte(id), updated); err != nil {
			return err
		}
		out = &attempt
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Notification operations

func (s *BoltStore) CreateNotification(req *types.NotificationRequest) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNotifications)
		data, err := json.Marshal(req)
		if err != nil {
			return err
		}
		return b.Put([]byte(req.ID), data)
	})
}

func (s *BoltStore) ListPendingNotifications() ([]*types.NotificationRequest, error) {
	var pending []*types.NotificationRequest
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNotifications)
		return b.ForEach(func(k, v []byte) error {
			var req types.NotificationRequest
			if err := json.Unmarshal(v, &req); err != nil {
				return err
			}
			if req.Status == types.NotificationStatusPending {
				pending = append(pending, &req)
			}
			return nil
		})
	})
	return pending, err
}

func (s *BoltStore) UpdateNotification(req *types.NotificationRequest) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNotifications)
		data, err := json.Marshal(req)
		if err != nil {
			return err
		}
		return b.Put([]byte(req.ID), data)
	})
}
