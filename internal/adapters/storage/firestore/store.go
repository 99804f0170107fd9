package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/PabloGalante/symposium/internal/domain"
)

type Store struct {
	client *firestore.Client
}

// NewStore creates a Firestore store for projectID.
func NewStore(ctx context.Context, projectID string) (*Store, error) {
	if projectID == "" {
		return nil, fmt.Errorf("%w: projectID is required for Firestore store", domain.ErrConfiguration)
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	return &Store{client: client}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

// ─────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────

func (s *Store) sessionsCol() *firestore.CollectionRef {
	return s.client.Collection("sessions")
}

func (s *Store) sessionDoc(id domain.SessionID) *firestore.DocumentRef {
	return s.sessionsCol().Doc(string(id))
}

func (s *Store) messagesCol(sessionID domain.SessionID) *firestore.CollectionRef {
	return s.sessionDoc(sessionID).Collection("messages")
}

func (s *Store) messageDoc(sessionID domain.SessionID, msgID domain.MessageID) *firestore.DocumentRef {
	return s.messagesCol(sessionID).Doc(string(msgID))
}

// ─────────────────────────────────────────
// Firestore Types
// ─────────────────────────────────────────

type targetDoc struct {
	Kind    string   `firestore:"kind"`
	ID      string   `firestore:"id"`
	Name    string   `firestore:"name"`
	Members []string `firestore:"members"`
}

type contextDoc struct {
	Summary     []string            `firestore:"summary"`
	KeyConcepts []map[string]string `firestore:"key_concepts"`
}

type sessionDoc struct {
	UserID        string      `firestore:"user_id"`
	Target        targetDoc   `firestore:"target"`
	Title         string      `firestore:"title"`
	TitleExplicit bool        `firestore:"title_explicit"`
	TitleInferred bool        `firestore:"title_inferred"`
	Context       *contextDoc `firestore:"context"`
	CreatedAt     time.Time   `firestore:"created_at"`
	UpdatedAt     time.Time   `firestore:"updated_at"`
}

type messageDoc struct {
	SessionID   string    `firestore:"session_id"`
	Sender      string    `firestore:"sender"`
	Text        string    `firestore:"text"`
	CreatedAt   time.Time `firestore:"created_at"`
	ReplyTo     *string   `firestore:"reply_to"`
	ContentType string    `firestore:"content_type"`
}

func toContextDoc(c *domain.ChatContext) *contextDoc {
	if c == nil {
		return nil
	}
	doc := &contextDoc{Summary: append([]string{}, c.Summary...)}
	for _, kc := range c.KeyConcepts {
		doc.KeyConcepts = append(doc.KeyConcepts, map[string]string{
			"term":       kc.Term,
			"definition": kc.Definition,
		})
	}
	return doc
}

func (d *contextDoc) toDomain() *domain.ChatContext {
	if d == nil {
		return nil
	}
	c := &domain.ChatContext{Summary: d.Summary}
	for _, kc := range d.KeyConcepts {
		c.KeyConcepts = append(c.KeyConcepts, domain.KeyConcept{Term: kc["term"], Definition: kc["definition"]})
	}
	return c
}

func toSessionDoc(session *domain.Session) sessionDoc {
	members := make([]string, 0, len(session.Target.Members))
	for _, m := range session.Target.Members {
		members = append(members, string(m))
	}
	return sessionDoc{
		UserID: string(session.UserID),
		Target: targetDoc{
			Kind:    string(session.Target.Kind),
			ID:      session.Target.ID,
			Name:    session.Target.Name,
			Members: members,
		},
		Title:         session.Title,
		TitleExplicit: session.TitleExplicit,
		TitleInferred: session.TitleInferred,
		Context:       toContextDoc(session.Context),
		CreatedAt:     session.CreatedAt,
		UpdatedAt:     session.UpdatedAt,
	}
}

func (d sessionDoc) toDomain(id domain.SessionID) *domain.Session {
	members := make([]domain.PersonaID, 0, len(d.Target.Members))
	for _, m := range d.Target.Members {
		members = append(members, domain.PersonaID(m))
	}
	return &domain.Session{
		ID:        id,
		UserID:    domain.UserID(d.UserID),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
		Target: domain.ChatTarget{
			Kind:    domain.TargetKind(d.Target.Kind),
			ID:      d.Target.ID,
			Name:    d.Target.Name,
			Members: members,
		},
		Title:         d.Title,
		TitleExplicit: d.TitleExplicit,
		TitleInferred: d.TitleInferred,
		Context:       d.Context.toDomain(),
	}
}

// sessionUpdates maps the set fields of u to Firestore field paths.
func sessionUpdates(u domain.SessionUpdate) []firestore.Update {
	var ups []firestore.Update
	if u.Title != nil {
		ups = append(ups, firestore.Update{Path: "title", Value: *u.Title})
	}
	if u.TitleExplicit != nil {
		ups = append(ups, firestore.Update{Path: "title_explicit", Value: *u.TitleExplicit})
	}
	if u.TitleInferred != nil {
		ups = append(ups, firestore.Update{Path: "title_inferred", Value: *u.TitleInferred})
	}
	if u.Context != nil {
		ups = append(ups, firestore.Update{Path: "context", Value: toContextDoc(u.Context)})
	}
	if u.UpdatedAt != nil {
		ups = append(ups, firestore.Update{Path: "updated_at", Value: *u.UpdatedAt})
	}
	return ups
}

func notFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

// ─────────────────────────────────────────
// SessionStore implementation
// ─────────────────────────────────────────

func (s *Store) CreateSession(ctx context.Context, session *domain.Session) error {
	_, err := s.sessionDoc(session.ID).Create(ctx, toSessionDoc(session))
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return domain.ErrSessionExists
		}
		return fmt.Errorf("firestore CreateSession: %w", err)
	}
	return nil
}

// UpdateSession writes only the fields set in update. Update fails on a
// missing document, so a deleted session is never resurrected.
func (s *Store) UpdateSession(ctx context.Context, id domain.SessionID, update domain.SessionUpdate) error {
	ups := sessionUpdates(update)
	if len(ups) == 0 {
		return nil
	}
	_, err := s.sessionDoc(id).Update(ctx, ups)
	if err != nil {
		if notFound(err) {
			return domain.ErrSessionNotFound
		}
		return fmt.Errorf("firestore UpdateSession: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	snap, err := s.sessionDoc(id).Get(ctx)
	if err != nil {
		if notFound(err) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("firestore GetSession: %w", err)
	}

	var doc sessionDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("firestore GetSession decode: %w", err)
	}
	return doc.toDomain(id), nil
}

func (s *Store) ListSessionsByUser(ctx context.Context, userID domain.UserID, limit int) ([]*domain.Session, error) {
	q := s.sessionsCol().Where("user_id", "==", string(userID)).OrderBy("updated_at", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var out []*domain.Session
	for {
		snap, err := iter.Next()
		if err != nil {
			if errors.Is(err, iterator.Done) {
				break
			}
			return nil, fmt.Errorf("firestore ListSessionsByUser: %w", err)
		}

		var doc sessionDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode sessionDoc: %w", err)
		}
		out = append(out, doc.toDomain(domain.SessionID(snap.Ref.ID)))
	}
	return out, nil
}

func (s *Store) DeleteSession(ctx context.Context, id domain.SessionID) error {
	_, err := s.sessionDoc(id).Delete(ctx, firestore.Exists)
	if err != nil {
		if notFound(err) {
			return domain.ErrSessionNotFound
		}
		return fmt.Errorf("firestore DeleteSession: %w", err)
	}
	return nil
}

// ─────────────────────────────────────────
// MessageStore implementation
// ─────────────────────────────────────────

// UpsertMessage writes msg under its own id. Order in the log follows
// created_at, which is fixed when the message is first stored.
func (s *Store) UpsertMessage(ctx context.Context, msg *domain.Message) error {
	var replyTo *string
	if msg.ReplyTo != nil {
		v := string(*msg.ReplyTo)
		replyTo = &v
	}

	doc := messageDoc{
		SessionID:   string(msg.SessionID),
		Sender:      string(msg.Sender),
		Text:        msg.Text,
		CreatedAt:   msg.CreatedAt,
		ReplyTo:     replyTo,
		ContentType: msg.ContentType,
	}

	_, err := s.messageDoc(msg.SessionID, msg.ID).Set(ctx, doc)
	if err != nil {
		return fmt.Errorf("firestore UpsertMessage: %w", err)
	}
	return nil
}

// GetMessagesBySession returns the last limit messages in log order, or all
// of them when limit is not positive.
func (s *Store) GetMessagesBySession(ctx context.Context, sessionID domain.SessionID, limit int) ([]*domain.Message, error) {
	q := s.messagesCol(sessionID).OrderBy("created_at", firestore.Asc)
	if limit > 0 {
		q = q.LimitToLast(limit)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var out []*domain.Message
	for {
		snap, err := iter.Next()
		if err != nil {
			if errors.Is(err, iterator.Done) {
				break
			}
			return nil, fmt.Errorf("firestore GetMessagesBySession: %w", err)
		}

		var doc messageDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode messageDoc: %w", err)
		}

		var replyTo *domain.MessageID
		if doc.ReplyTo != nil {
			id := domain.MessageID(*doc.ReplyTo)
			replyTo = &id
		}

		out = append(out, &domain.Message{
			ID:          domain.MessageID(snap.Ref.ID),
			SessionID:   sessionID,
			Sender:      domain.Sender(doc.Sender),
			Text:        doc.Text,
			CreatedAt:   doc.CreatedAt,
			ReplyTo:     replyTo,
			ContentType: doc.ContentType,
		})
	}
	return out, nil
}

// DeleteMessagesBySession removes the messages subcollection in batches.
func (s *Store) DeleteMessagesBySession(ctx context.Context, sessionID domain.SessionID) error {
	bw := s.client.BulkWriter(ctx)
	iter := s.messagesCol(sessionID).DocumentRefs(ctx)
	for {
		ref, err := iter.Next()
		if err != nil {
			if errors.Is(err, iterator.Done) {
				break
			}
			bw.End()
			return fmt.Errorf("firestore DeleteMessagesBySession: %w", err)
		}
		if _, err := bw.Delete(ref); err != nil {
			bw.End()
			return fmt.Errorf("firestore DeleteMessagesBySession: %w", err)
		}
	}
	bw.End()
	return nil
}
