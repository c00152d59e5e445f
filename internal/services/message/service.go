package message

import (
	"context"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"wellnest/internal/crypto"
	"wellnest/internal/domain"
	"wellnest/internal/metrics"
	"wellnest/internal/subscription"
)

// UndecryptableBody replaces the body of a message that fails to decrypt.
const UndecryptableBody = "[unable to decrypt message]"

const (
	defaultWindow         = 50
	defaultTypingInterval = 2 * time.Second
	previewRunes          = 80
)

var (
	// ErrNotParticipant indicates the user is not a member of the session.
	ErrNotParticipant = &domain.Error{Kind: domain.KindPermission, Op: "message: not a participant"}
	// ErrNotSender indicates an edit by someone other than the author.
	ErrNotSender = &domain.Error{Kind: domain.KindPermission, Op: "message: only the sender may edit"}
	// ErrEmptyMessage rejects text messages with no body.
	ErrEmptyMessage = &domain.Error{Kind: domain.KindInvalid, Op: "message: empty text"}
)

// Config tunes a Service. Zero values select defaults.
type Config struct {
	Window         int
	TypingInterval time.Duration
	Clock          clock.Clock
	Logger         zerolog.Logger
	Metrics        *metrics.Metrics
}

// Service implements domain.MessageService on a document store.
//
// High-level flow:
//   - Send: resolve the session key, seal the text, write the message
//     document, then update the session summary.
//   - Receive: watch the newest messages through the subscription manager,
//     decrypt each snapshot and emit it oldest-first.
type Service struct {
	store    domain.DocumentStore
	sessions domain.SessionService
	strategy domain.KeyStrategy
	subs     *subscription.Manager

	window         int
	typingInterval time.Duration
	clock          clock.Clock
	log            zerolog.Logger
	metrics        *metrics.Metrics

	typingMu    sync.Mutex
	typing      map[string]*typingState
	typingSwept time.Time
}

// New constructs a message Service.
func New(
	store domain.DocumentStore,
	sessions domain.SessionService,
	strategy domain.KeyStrategy,
	subs *subscription.Manager,
	cfg Config,
) *Service {
	if cfg.Window <= 0 {
		cfg.Window = defaultWindow
	}
	if cfg.TypingInterval <= 0 {
		cfg.TypingInterval = defaultTypingInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	return &Service{
		store:          store,
		sessions:       sessions,
		strategy:       strategy,
		subs:           subs,
		window:         cfg.Window,
		typingInterval: cfg.TypingInterval,
		clock:          cfg.Clock,
		log:            cfg.Logger.With().Str("component", "message").Logger(),
		metrics:        cfg.Metrics,
		typing:         make(map[string]*typingState),
	}
}

// Send writes a message to the session.
//
// Steps:
//  1. Load the session; a missing session is an error.
//  2. For encrypted text, seal the plaintext under the key of the session's
//     current key epoch. Other kinds keep their caption in the clear.
//  3. Create the message document with a server timestamp and the sender's
//     own read receipt.
//  4. Update the session summary. The message is already durable, so a
//     failure here is only logged.
func (s *Service) Send(
	ctx context.Context,
	sessionID domain.SessionID,
	sender domain.UserID,
	plaintext string,
	opts domain.SendOptions,
) (domain.MessageID, error) {
	kind := opts.Kind
	if kind == "" {
		kind = domain.KindText
	}
	if !kind.Valid() {
		return "", domain.Errorf(domain.KindInvalid, "send", "unknown message kind %q", kind)
	}
	if kind == domain.KindText && plaintext == "" {
		return "", ErrEmptyMessage
	}

	sess, err := s.participantSession(ctx, sessionID, sender)
	if err != nil {
		return "", err
	}

	msg := domain.EncryptedMessage{
		ID:        domain.MessageID(uuid.NewString()),
		SessionID: sessionID,
		SenderID:  sender,
		Kind:      kind,
		ReplyTo:   opts.ReplyTo,
		MediaRef:  opts.MediaRef,
	}

	if kind == domain.KindText && sess.EncryptionEnabled {
		key, err := s.strategy.SessionKey(ctx, sess, sess.KeyEpoch)
		if err != nil {
			return "", err
		}
		ct, iv, err := crypto.Encrypt(plaintext, key)
		if err != nil {
			return "", err
		}
		msg.Ciphertext, msg.IV = ct, iv
		msg.Encrypted = true
		msg.KeyEpoch = sess.KeyEpoch
	} else {
		// Unencrypted bodies travel in the ciphertext field verbatim.
		msg.Ciphertext = plaintext
	}

	data, err := domain.EncodeData(msg)
	if err != nil {
		return "", err
	}
	data["timestamp"] = domain.ServerTimestamp()
	data["readBy"] = map[string]any{sender.String(): domain.ServerTimestamp()}

	if err := s.store.Create(ctx, domain.MessagePath(sessionID, msg.ID), data); err != nil {
		return "", err
	}
	s.metrics.Sent()

	if err := s.sessions.RecordSentMessage(ctx, sessionID, preview(msg, plaintext), sender); err != nil {
		s.log.Warn().Err(err).Str("session", sessionID.String()).Msg("session summary update failed")
	}
	return msg.ID, nil
}

// ReceiveStream watches the newest messages of a session. Every batch is
// the whole window, oldest first. The stream ends on Close or when ctx is
// cancelled.
func (s *Service) ReceiveStream(
	ctx context.Context,
	sessionID domain.SessionID,
	viewer domain.UserID,
) (domain.MessageStream, error) {
	sess, err := s.participantSession(ctx, sessionID, viewer)
	if err != nil {
		return nil, err
	}

	q := domain.Query{
		Collection: domain.MessagesPath(sessionID),
		OrderBy:    "timestamp",
		Desc:       true,
		Limit:      s.window,
	}
	listenerID := "messages/" + sessionID.String() + "/" + viewer.String() + "/" + uuid.NewString()
	w := s.subs.Watch(ctx, listenerID, subscription.Query(s.store, q))

	st := newStream(w)
	go st.run(func(docs []domain.Document) []domain.DecryptedMessage {
		return s.decryptBatch(ctx, &sess, docs)
	})
	return st, nil
}

// MarkRead records viewer's read receipt. Repeat calls keep the first
// receipt.
func (s *Service) MarkRead(
	ctx context.Context,
	sessionID domain.SessionID,
	messageID domain.MessageID,
	viewer domain.UserID,
) error {
	path := domain.MessagePath(sessionID, messageID)
	doc, err := s.store.Get(ctx, path)
	if err != nil {
		return err
	}
	if readBy, ok := doc.Data["readBy"].(map[string]any); ok {
		if _, seen := readBy[viewer.String()]; seen {
			return nil
		}
	}
	return s.store.Set(ctx, path, domain.Data{
		"readBy": map[string]any{viewer.String(): domain.ServerTimestamp()},
	}, domain.SetOptions{Merge: true})
}

// SetTyping updates the user's typing flag. A true that repeats the last
// value written within the typing interval is dropped; every change of
// value goes through.
func (s *Service) SetTyping(
	ctx context.Context,
	sessionID domain.SessionID,
	user domain.UserID,
	isTyping bool,
) error {
	if !s.allowTyping(sessionID, user, isTyping) {
		return nil
	}
	if _, err := s.participantSession(ctx, sessionID, user); err != nil {
		return err
	}
	return s.store.Set(ctx, domain.SessionPath(sessionID), domain.Data{
		"participants": map[string]any{
			user.String(): map[string]any{"isTyping": isTyping},
		},
	}, domain.SetOptions{Merge: true})
}

// typingState is the throttle of one (session, user) that last wrote true.
type typingState struct {
	limiter *rate.Limiter
	written time.Time
}

func (s *Service) allowTyping(sessionID domain.SessionID, user domain.UserID, isTyping bool) bool {
	key := sessionID.String() + "/" + user.String()
	now := s.clock.Now()

	s.typingMu.Lock()
	defer s.typingMu.Unlock()
	s.pruneTypingLocked(now)

	if !isTyping {
		delete(s.typing, key)
		return true
	}
	st, ok := s.typing[key]
	if !ok {
		st = &typingState{limiter: rate.NewLimiter(rate.Every(s.typingInterval), 1)}
		st.limiter.AllowN(now, 1)
		st.written = now
		s.typing[key] = st
		return true
	}
	if !st.limiter.AllowN(now, 1) {
		return false
	}
	st.written = now
	return true
}

// pruneTypingLocked drops throttles idle for a full interval. Their limiter
// has refilled, so a fresh one behaves the same.
func (s *Service) pruneTypingLocked(now time.Time) {
	if now.Sub(s.typingSwept) < s.typingInterval {
		return
	}
	s.typingSwept = now
	for k, st := range s.typing {
		if now.Sub(st.written) >= s.typingInterval {
			delete(s.typing, k)
		}
	}
}

// Edit replaces the body of a message. Only its sender may edit it.
func (s *Service) Edit(
	ctx context.Context,
	sessionID domain.SessionID,
	messageID domain.MessageID,
	editor domain.UserID,
	plaintext string,
) error {
	path := domain.MessagePath(sessionID, messageID)
	doc, err := s.store.Get(ctx, path)
	if err != nil {
		return err
	}
	msg, err := decodeMessage(doc)
	if err != nil {
		return err
	}
	if msg.SenderID != editor {
		return ErrNotSender
	}
	if msg.Kind == domain.KindText && plaintext == "" {
		return ErrEmptyMessage
	}

	update := domain.Data{"editedAt": domain.ServerTimestamp()}
	if msg.Encrypted {
		sess, err := s.sessions.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		key, err := s.strategy.SessionKey(ctx, sess, msg.KeyEpoch)
		if err != nil {
			return err
		}
		ct, iv, err := crypto.Encrypt(plaintext, key)
		if err != nil {
			return err
		}
		update["ciphertext"], update["iv"] = ct, iv
	} else {
		update["ciphertext"] = plaintext
	}
	return s.store.Set(ctx, path, update, domain.SetOptions{Merge: true})
}

// SendAttachment encrypts a file under the session key, stores it next to
// the messages and sends an image message referencing it.
func (s *Service) SendAttachment(
	ctx context.Context,
	sessionID domain.SessionID,
	sender domain.UserID,
	caption, name, mimeType string,
	data []byte,
) (domain.MessageID, error) {
	sess, err := s.participantSession(ctx, sessionID, sender)
	if err != nil {
		return "", err
	}
	key, err := s.strategy.SessionKey(ctx, sess, sess.KeyEpoch)
	if err != nil {
		return "", err
	}
	f, err := crypto.EncryptFile(data, name, mimeType, key)
	if err != nil {
		return "", err
	}

	att := domain.Attachment{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		SenderID:  sender,
		File:      f,
		KeyEpoch:  sess.KeyEpoch,
	}
	doc, err := domain.EncodeData(att)
	if err != nil {
		return "", err
	}
	doc["createdAt"] = domain.ServerTimestamp()
	if err := s.store.Create(ctx, domain.AttachmentPath(sessionID, att.ID), doc); err != nil {
		return "", err
	}

	return s.Send(ctx, sessionID, sender, caption, domain.SendOptions{
		Kind:     domain.KindImage,
		MediaRef: att.ID,
	})
}

// FetchAttachment loads and decrypts the attachment a message references.
func (s *Service) FetchAttachment(
	ctx context.Context,
	sessionID domain.SessionID,
	mediaRef string,
) ([]byte, domain.Attachment, error) {
	doc, err := s.store.Get(ctx, domain.AttachmentPath(sessionID, mediaRef))
	if err != nil {
		return nil, domain.Attachment{}, err
	}
	var att domain.Attachment
	if err := domain.DecodeData(doc.Data, &att); err != nil {
		return nil, domain.Attachment{}, err
	}
	sess, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, domain.Attachment{}, err
	}
	key, err := s.strategy.SessionKey(ctx, sess, att.KeyEpoch)
	if err != nil {
		return nil, domain.Attachment{}, err
	}
	data, err := crypto.DecryptFile(att.File, key)
	if err != nil {
		return nil, domain.Attachment{}, err
	}
	return data, att, nil
}

func (s *Service) participantSession(
	ctx context.Context,
	sessionID domain.SessionID,
	user domain.UserID,
) (domain.Session, error) {
	sess, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	if !sess.HasParticipant(user) {
		return domain.Session{}, ErrNotParticipant
	}
	return sess, nil
}

// decryptBatch turns a snapshot window into viewer messages, oldest first.
// sess is refreshed when a message was sealed under a newer key epoch than
// the cached session knows about.
func (s *Service) decryptBatch(
	ctx context.Context,
	sess *domain.Session,
	docs []domain.Document,
) []domain.DecryptedMessage {
	keys := make(map[int]domain.SymmetricKey)
	out := make([]domain.DecryptedMessage, 0, len(docs))

	for _, doc := range docs {
		msg, err := decodeMessage(doc)
		if err != nil {
			s.log.Warn().Err(err).Str("path", doc.Path).Msg("skipping malformed message")
			continue
		}
		dm := viewOf(msg)
		if msg.Encrypted {
			body, err := s.open(ctx, sess, keys, msg)
			if err != nil {
				s.metrics.DecryptFailed()
				s.log.Warn().Err(err).
					Str("session", msg.SessionID.String()).
					Str("message", msg.ID.String()).
					Msg("message could not be decrypted")
				dm.Body = UndecryptableBody
				dm.Undecryptable = true
			} else {
				dm.Body = body
			}
		}
		out = append(out, dm)
	}

	SortChronological(out)
	return out
}

func (s *Service) open(
	ctx context.Context,
	sess *domain.Session,
	keys map[int]domain.SymmetricKey,
	msg domain.EncryptedMessage,
) (string, error) {
	key, ok := keys[msg.KeyEpoch]
	if !ok {
		if msg.KeyEpoch > sess.KeyEpoch {
			fresh, err := s.sessions.GetSession(ctx, msg.SessionID)
			if err != nil {
				return "", err
			}
			*sess = fresh
		}
		k, err := s.strategy.SessionKey(ctx, *sess, msg.KeyEpoch)
		if err != nil {
			return "", err
		}
		keys[msg.KeyEpoch] = k
		key = k
	}
	return crypto.Decrypt(msg.Ciphertext, msg.IV, key)
}

func decodeMessage(doc domain.Document) (domain.EncryptedMessage, error) {
	var msg domain.EncryptedMessage
	if err := domain.DecodeData(doc.Data, &msg); err != nil {
		return domain.EncryptedMessage{}, err
	}
	if msg.ID == "" {
		msg.ID = domain.MessageID(doc.ID())
	}
	if msg.Kind == "" {
		msg.Kind = domain.KindText
	}
	return msg, nil
}

func viewOf(msg domain.EncryptedMessage) domain.DecryptedMessage {
	return domain.DecryptedMessage{
		ID:        msg.ID,
		SessionID: msg.SessionID,
		SenderID:  msg.SenderID,
		Body:      msg.Ciphertext,
		Kind:      msg.Kind,
		Timestamp: msg.Timestamp,
		ReadBy:    msg.ReadBy,
		ReplyTo:   msg.ReplyTo,
		MediaRef:  msg.MediaRef,
		EditedAt:  msg.EditedAt,
	}
}

// preview is the session-list summary of a message. Sealed text never
// appears in it.
func preview(msg domain.EncryptedMessage, plaintext string) string {
	switch {
	case msg.Encrypted:
		return "[encrypted message]"
	case msg.Kind == domain.KindImage && plaintext == "":
		return "[image]"
	}
	if utf8.RuneCountInString(plaintext) <= previewRunes {
		return plaintext
	}
	r := []rune(plaintext)
	return string(r[:previewRunes]) + "…"
}

// Compile-time assertion that Service implements domain.MessageService.
var _ domain.MessageService = (*Service)(nil)
