package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// BadgerStore persists messages and direct-message channel records in an
// embedded BadgerDB.
//
// Message keys embed a 19-digit zero-padded nanosecond timestamp so a prefix
// scan yields chronological order, with the message uuid as a collision
// disambiguator for same-nanosecond writes.
type BadgerStore struct {
	db     *badger.DB
	logger *slog.Logger
}

var (
	_ MessageStore = (*BadgerStore)(nil)
	_ ChannelStore = (*BadgerStore)(nil)
)

const channelSeqKey = "dmchan:nextid"

func NewBadgerStore(db *badger.DB, logger *slog.Logger) *BadgerStore {
	return &BadgerStore{
		db:     db,
		logger: logger.With(slog.String("component", "storage_badger")),
	}
}

// Open opens the database at path with sane daemon defaults.
func Open(path string, logger *slog.Logger) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).WithLoggingLevel(badger.ERROR)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open message store at %s: %w", path, err)
	}
	logger.Info("Message store opened", slog.String("path", path))
	return db, nil
}

func roomMessageKey(roomID string, at time.Time, id uuid.UUID) []byte {
	return fmt.Appendf(nil, "roommsg:%s:%019d:%s", roomID, at.UnixNano(), id)
}

func directMessageKey(channelID int64, at time.Time, id uuid.UUID) []byte {
	return fmt.Appendf(nil, "dmmsg:%d:%019d:%s", channelID, at.UnixNano(), id)
}

func channelKey(low, high int64) []byte {
	return fmt.Appendf(nil, "dmchan:%d:%d", low, high)
}

func (s *BadgerStore) SaveRoomMessage(ctx context.Context, roomID string, userID int64, displayName, content, messageType string) (Message, error) {
	msg := Message{
		ID:          uuid.New(),
		RoomID:      roomID,
		UserID:      userID,
		DisplayName: displayName,
		Content:     content,
		MessageType: messageType,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.put(roomMessageKey(roomID, msg.CreatedAt, msg.ID), msg); err != nil {
		return Message{}, fmt.Errorf("save room message: %w", err)
	}
	return msg, nil
}

func (s *BadgerStore) SaveDirectMessage(ctx context.Context, channelID int64, senderID int64, displayName, content, messageType string) (Message, error) {
	msg := Message{
		ID:          uuid.New(),
		ChannelID:   channelID,
		UserID:      senderID,
		DisplayName: displayName,
		Content:     content,
		MessageType: messageType,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.put(directMessageKey(channelID, msg.CreatedAt, msg.ID), msg); err != nil {
		return Message{}, fmt.Errorf("save direct message: %w", err)
	}
	return msg, nil
}

func (s *BadgerStore) put(key []byte, msg Message) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

func (s *BadgerStore) ListRoomMessages(ctx context.Context, roomID string, limit int) ([]Message, error) {
	return s.list(fmt.Sprintf("roommsg:%s:", roomID), limit)
}

func (s *BadgerStore) ListDirectMessages(ctx context.Context, channelID int64, limit int) ([]Message, error) {
	return s.list(fmt.Sprintf("dmmsg:%d:", channelID), limit)
}

// list scans newest-first under prefix, then re-reverses so callers always
// see creation-time ascending order regardless of how storage was queried.
func (s *BadgerStore) list(prefixStr string, limit int) ([]Message, error) {
	var messages []Message
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(prefixStr)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		// Seek past the newest possible timestamp, then walk backwards.
		seekKey := append([]byte(prefixStr), []byte("9999999999999999999")...)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(messages) == limit {
				break
			}
			err := it.Item().Value(func(value []byte) error {
				var msg Message
				if err := json.Unmarshal(value, &msg); err != nil {
					return err
				}
				messages = append(messages, msg)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list messages under %s: %w", prefixStr, err)
	}
	return lo.Reverse(messages), nil
}

// ResolveChannel returns the channel id for the ordered user pair, creating
// the record on first contact. The read-or-create runs inside one Badger
// transaction; a concurrent creator loses with ErrConflict, retries, and
// discovers the winner's record, so both sides converge on one channel id.
func (s *BadgerStore) ResolveChannel(ctx context.Context, userA, userB int64) (int64, error) {
	low, high := userA, userB
	if low > high {
		low, high = high, low
	}
	key := channelKey(low, high)

	for {
		var channelID int64
		err := s.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(key)
			if err == nil {
				return item.Value(func(value []byte) error {
					channelID, err = strconv.ParseInt(string(value), 10, 64)
					return err
				})
			}
			if err != badger.ErrKeyNotFound {
				return err
			}

			channelID, err = s.nextChannelID(txn)
			if err != nil {
				return err
			}
			return txn.Set(key, []byte(strconv.FormatInt(channelID, 10)))
		})
		if err == badger.ErrConflict {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("resolve channel for users %d,%d: %w", low, high, err)
		}
		return channelID, nil
	}
}

// nextChannelID allocates a channel id from a counter key inside the
// caller's transaction, so allocation and record creation commit together.
func (s *BadgerStore) nextChannelID(txn *badger.Txn) (int64, error) {
	next := int64(1)
	item, err := txn.Get([]byte(channelSeqKey))
	if err == nil {
		verr := item.Value(func(value []byte) error {
			current, perr := strconv.ParseInt(string(value), 10, 64)
			if perr != nil {
				return perr
			}
			next = current + 1
			return nil
		})
		if verr != nil {
			return 0, verr
		}
	} else if err != badger.ErrKeyNotFound {
		return 0, err
	}
	if err := txn.Set([]byte(channelSeqKey), []byte(strconv.FormatInt(next, 10))); err != nil {
		return 0, err
	}
	return next, nil
}
