// Package badger stores sessions and messages in an embedded BadgerDB.
//
// Key layout:
//
//	session:{session_id}                 → msgpack sessionRecord
//	msg:{session_id}:{seq:016x}          → msgpack messageRecord
//	msgidx:{session_id}:{message_id}     → key of the message entry
//	msgseq:{session_id}                  → next sequence number (8 bytes, big endian)
package badger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/PabloGalante/symposium/internal/domain"
)

type Options struct {
	// Dir is the data directory. Required unless InMemory is set.
	Dir      string
	InMemory bool
	Logger   *slog.Logger
}

type Store struct {
	db *badger.DB
}

func Open(opts Options) (*Store, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("badger store: Dir is required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dbOpts = dbOpts.WithLogger(slogAdapter{logger.With("component", "badger")})

	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("opening badger: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type sessionRecord struct {
	UserID        string              `msgpack:"user_id"`
	CreatedAt     time.Time           `msgpack:"created_at"`
	UpdatedAt     time.Time           `msgpack:"updated_at"`
	TargetKind    string              `msgpack:"target_kind"`
	TargetID      string              `msgpack:"target_id"`
	TargetName    string              `msgpack:"target_name"`
	Members       []string            `msgpack:"members"`
	Title         string              `msgpack:"title"`
	TitleExplicit bool                `msgpack:"title_explicit"`
	TitleInferred bool                `msgpack:"title_inferred"`
	Context       *domain.ChatContext `msgpack:"context,omitempty"`
}

type messageRecord struct {
	ID          string    `msgpack:"id"`
	Sender      string    `msgpack:"sender"`
	Text        string    `msgpack:"text"`
	CreatedAt   time.Time `msgpack:"created_at"`
	ContentType string    `msgpack:"content_type"`
	ReplyTo     *string   `msgpack:"reply_to,omitempty"`
}

func sessionKey(id domain.SessionID) []byte { return []byte("session:" + string(id)) }

func messagePrefix(id domain.SessionID) []byte { return []byte("msg:" + string(id) + ":") }

func messageKey(id domain.SessionID, seq uint64) []byte {
	return fmt.Appendf(messagePrefix(id), "%016x", seq)
}

func indexKey(sid domain.SessionID, mid domain.MessageID) []byte {
	return []byte("msgidx:" + string(sid) + ":" + string(mid))
}

func indexPrefix(sid domain.SessionID) []byte { return []byte("msgidx:" + string(sid) + ":") }

func seqKey(sid domain.SessionID) []byte { return []byte("msgseq:" + string(sid)) }

// ─────────────────────────────────────────
// SessionStore implementation
// ─────────────────────────────────────────

func (s *Store) CreateSession(_ context.Context, session *domain.Session) error {
	val, err := msgpack.Marshal(toSessionRecord(session))
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return s.update(func(txn *badger.Txn) error {
		if _, err := txn.Get(sessionKey(session.ID)); err == nil {
			return domain.ErrSessionExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(sessionKey(session.ID), val)
	})
}

func (s *Store) UpdateSession(_ context.Context, id domain.SessionID, update domain.SessionUpdate) error {
	return s.update(func(txn *badger.Txn) error {
		session, err := getSession(txn, id)
		if err != nil {
			return err
		}
		update.Apply(session)
		val, err := msgpack.Marshal(toSessionRecord(session))
		if err != nil {
			return fmt.Errorf("encode session: %w", err)
		}
		return txn.Set(sessionKey(id), val)
	})
}

func (s *Store) GetSession(_ context.Context, id domain.SessionID) (*domain.Session, error) {
	var out *domain.Session
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		out, err = getSession(txn, id)
		return err
	})
	return out, err
}

// ListSessionsByUser scans every session; the store is meant for a single
// local user.
func (s *Store) ListSessionsByUser(_ context.Context, userID domain.UserID, limit int) ([]*domain.Session, error) {
	var out []*domain.Session
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte("session:")
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = prefix
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var rec sessionRecord
			if err := item.Value(func(v []byte) error { return msgpack.Unmarshal(v, &rec) }); err != nil {
				return fmt.Errorf("decode session: %w", err)
			}
			if rec.UserID != string(userID) {
				continue
			}
			id := domain.SessionID(item.Key()[len(prefix):])
			out = append(out, rec.toDomain(id))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(out, func(a, b *domain.Session) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) DeleteSession(_ context.Context, id domain.SessionID) error {
	return s.update(func(txn *badger.Txn) error {
		if _, err := txn.Get(sessionKey(id)); errors.Is(err, badger.ErrKeyNotFound) {
			return domain.ErrSessionNotFound
		} else if err != nil {
			return err
		}
		return txn.Delete(sessionKey(id))
	})
}

// ─────────────────────────────────────────
// MessageStore implementation
// ─────────────────────────────────────────

func (s *Store) UpsertMessage(_ context.Context, msg *domain.Message) error {
	val, err := msgpack.Marshal(toMessageRecord(msg))
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	return s.update(func(txn *badger.Txn) error {
		idx := indexKey(msg.SessionID, msg.ID)
		item, err := txn.Get(idx)
		switch {
		case err == nil:
			key, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			return txn.Set(key, val)
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		seq, err := nextSeq(txn, msg.SessionID)
		if err != nil {
			return err
		}
		key := messageKey(msg.SessionID, seq)
		if err := txn.Set(key, val); err != nil {
			return err
		}
		return txn.Set(idx, key)
	})
}

// GetMessagesBySession returns the last limit messages in log order, or all
// of them when limit is not positive.
func (s *Store) GetMessagesBySession(_ context.Context, sessionID domain.SessionID, limit int) ([]*domain.Message, error) {
	var out []*domain.Message
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := messagePrefix(sessionID)
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = prefix
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec messageRecord
			if err := it.Item().Value(func(v []byte) error { return msgpack.Unmarshal(v, &rec) }); err != nil {
				return fmt.Errorf("decode message: %w", err)
			}
			out = append(out, rec.toDomain(sessionID))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *Store) DeleteMessagesBySession(_ context.Context, sessionID domain.SessionID) error {
	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		for _, prefix := range [][]byte{messagePrefix(sessionID), indexPrefix(sessionID)} {
			iterOpts := badger.DefaultIteratorOptions
			iterOpts.Prefix = prefix
			iterOpts.PrefetchValues = false
			it := txn.NewIterator(iterOpts)
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				keys = append(keys, it.Item().KeyCopy(nil))
			}
			it.Close()
		}
		return nil
	})
	if err != nil {
		return err
	}
	keys = append(keys, seqKey(sessionID))

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return err
		}
	}
	return wb.Flush()
}

// update retries fn when a concurrent transaction wrote the same keys.
func (s *Store) update(fn func(txn *badger.Txn) error) error {
	for {
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
}

func getSession(txn *badger.Txn, id domain.SessionID) (*domain.Session, error) {
	item, err := txn.Get(sessionKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec sessionRecord
	if err := item.Value(func(v []byte) error { return msgpack.Unmarshal(v, &rec) }); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return rec.toDomain(id), nil
}

func nextSeq(txn *badger.Txn, sid domain.SessionID) (uint64, error) {
	var seq uint64
	item, err := txn.Get(seqKey(sid))
	switch {
	case err == nil:
		if err := item.Value(func(v []byte) error {
			seq = binary.BigEndian.Uint64(v)
			return nil
		}); err != nil {
			return 0, err
		}
	case !errors.Is(err, badger.ErrKeyNotFound):
		return 0, err
	}
	return seq, txn.Set(seqKey(sid), binary.BigEndian.AppendUint64(nil, seq+1))
}

func toSessionRecord(s *domain.Session) sessionRecord {
	members := make([]string, 0, len(s.Target.Members))
	for _, m := range s.Target.Members {
		members = append(members, string(m))
	}
	return sessionRecord{
		UserID:        string(s.UserID),
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
		TargetKind:    string(s.Target.Kind),
		TargetID:      s.Target.ID,
		TargetName:    s.Target.Name,
		Members:       members,
		Title:         s.Title,
		TitleExplicit: s.TitleExplicit,
		TitleInferred: s.TitleInferred,
		Context:       s.Context,
	}
}

func (r sessionRecord) toDomain(id domain.SessionID) *domain.Session {
	members := make([]domain.PersonaID, 0, len(r.Members))
	for _, m := range r.Members {
		members = append(members, domain.PersonaID(m))
	}
	return &domain.Session{
		ID:        id,
		UserID:    domain.UserID(r.UserID),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
		Target: domain.ChatTarget{
			Kind:    domain.TargetKind(r.TargetKind),
			ID:      r.TargetID,
			Name:    r.TargetName,
			Members: members,
		},
		Title:         r.Title,
		TitleExplicit: r.TitleExplicit,
		TitleInferred: r.TitleInferred,
		Context:       r.Context,
	}
}

func toMessageRecord(m *domain.Message) messageRecord {
	rec := messageRecord{
		ID:          string(m.ID),
		Sender:      string(m.Sender),
		Text:        m.Text,
		CreatedAt:   m.CreatedAt,
		ContentType: m.ContentType,
	}
	if m.ReplyTo != nil {
		v := string(*m.ReplyTo)
		rec.ReplyTo = &v
	}
	return rec
}

func (r messageRecord) toDomain(sid domain.SessionID) *domain.Message {
	m := &domain.Message{
		ID:          domain.MessageID(r.ID),
		SessionID:   sid,
		Sender:      domain.Sender(r.Sender),
		Text:        r.Text,
		CreatedAt:   r.CreatedAt,
		ContentType: r.ContentType,
	}
	if r.ReplyTo != nil {
		id := domain.MessageID(*r.ReplyTo)
		m.ReplyTo = &id
	}
	return m
}

// slogAdapter routes badger's logger into slog, dropping debug output.
type slogAdapter struct{ log *slog.Logger }

func (a slogAdapter) Errorf(f string, v ...any)   { a.log.Error(fmt.Sprintf(f, v...)) }
func (a slogAdapter) Warningf(f string, v ...any) { a.log.Warn(fmt.Sprintf(f, v...)) }
func (a slogAdapter) Infof(string, ...any)        {}
func (a slogAdapter) Debugf(string, ...any)       {}
