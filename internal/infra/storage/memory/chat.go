package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	domainchat "github.com/Lookout84/agromarket/internal/domain/chat"
	domainlistings "github.com/Lookout84/agromarket/internal/domain/listings"
	domainuser "github.com/Lookout84/agromarket/internal/domain/user"
)

type conversationKey struct {
	buyer   domainuser.ID
	seller  domainuser.ID
	listing domainlistings.ListingID
}

type conversationRecord struct {
	conv          domainchat.Conversation
	nextSeq       int64
	lastMessageAt time.Time
}

// ConversationStore keeps conversations in process memory. The single mutex
// makes find-or-create atomic, standing in for the unique index the Mongo
// adapter relies on.
type ConversationStore struct {
	mu    sync.Mutex
	byID  map[domainchat.ConversationID]*conversationRecord
	byKey map[conversationKey]domainchat.ConversationID
}

func NewConversationStore() *ConversationStore {
	return &ConversationStore{
		byID:  make(map[domainchat.ConversationID]*conversationRecord),
		byKey: make(map[conversationKey]domainchat.ConversationID),
	}
}

func (s *ConversationStore) GetOrCreate(ctx context.Context, conv *domainchat.Conversation) (*domainchat.Conversation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := conversationKey{buyer: conv.BuyerID, seller: conv.SellerID, listing: conv.ListingID}
	if id, ok := s.byKey[key]; ok {
		existing := s.byID[id].conv
		return &existing, false, nil
	}
	record := &conversationRecord{conv: *conv}
	s.byID[conv.ID] = record
	s.byKey[key] = conv.ID
	stored := record.conv
	return &stored, true, nil
}

func (s *ConversationStore) ByID(ctx context.Context, id domainchat.ConversationID) (*domainchat.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.byID[id]
	if !ok {
		return nil, domainchat.ErrConversationNotFound
	}
	conv := record.conv
	return &conv, nil
}

func (s *ConversationStore) ListByUser(ctx context.Context, userID domainuser.ID, page, pageSize int) ([]*domainchat.Conversation, error) {
	s.mu.Lock()
	matches := make([]domainchat.Conversation, 0)
	for _, record := range s.byID {
		if record.conv.Participant(userID) {
			matches = append(matches, record.conv)
		}
	}
	s.mu.Unlock()

	sort.Slice(matches, func(i, j int) bool {
		if !matches[i].LastActivityAt.Equal(matches[j].LastActivityAt) {
			return matches[i].LastActivityAt.After(matches[j].LastActivityAt)
		}
		return matches[i].ID > matches[j].ID
	})

	start := (page - 1) * pageSize
	if start >= len(matches) {
		return nil, nil
	}
	end := start + pageSize
	if end > len(matches) {
		end = len(matches)
	}
	out := make([]*domainchat.Conversation, 0, end-start)
	for i := start; i < end; i++ {
		conv := matches[i]
		out = append(out, &conv)
	}
	return out, nil
}

func (s *ConversationStore) NextSeq(ctx context.Context, id domainchat.ConversationID, at time.Time) (int64, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.byID[id]
	if !ok {
		return 0, time.Time{}, domainchat.ErrConversationNotFound
	}
	record.nextSeq++
	// Clamp the commit timestamp so it never moves backwards: a sender whose
	// clock sample went stale while waiting for the lock still sorts after
	// the sequence handed out before it.
	if at.Before(record.lastMessageAt) {
		at = record.lastMessageAt
	}
	record.lastMessageAt = at
	record.conv.Touch(at)
	return record.nextSeq, at, nil
}

func (s *ConversationStore) Touch(ctx context.Context, id domainchat.ConversationID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.byID[id]
	if !ok {
		return domainchat.ErrConversationNotFound
	}
	record.conv.Touch(at)
	return nil
}

// MessageLog is the in-memory append-only log. Every mutation runs inside
// one critical section, so bulk mark-read cannot interleave with an append.
type MessageLog struct {
	mu     sync.Mutex
	byID   map[domainchat.MessageID]*domainchat.Message
	byConv map[domainchat.ConversationID][]domainchat.MessageID
}

func NewMessageLog() *MessageLog {
	return &MessageLog{
		byID:   make(map[domainchat.MessageID]*domainchat.Message),
		byConv: make(map[domainchat.ConversationID][]domainchat.MessageID),
	}
}

func (l *MessageLog) Append(ctx context.Context, msg *domainchat.Message) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	stored := cloneMessage(msg)
	l.byID[msg.ID] = stored
	l.byConv[msg.ConversationID] = append(l.byConv[msg.ConversationID], msg.ID)
	return nil
}

func (l *MessageLog) ByID(ctx context.Context, id domainchat.MessageID) (*domainchat.Message, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	msg, ok := l.byID[id]
	if !ok {
		return nil, domainchat.ErrMessageNotFound
	}
	return cloneMessage(msg), nil
}

func (l *MessageLog) ListPage(ctx context.Context, conversationID domainchat.ConversationID, page, pageSize int) ([]*domainchat.Message, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ordered := l.sortedDesc(conversationID)
	start := (page - 1) * pageSize
	if start >= len(ordered) {
		return nil, nil
	}
	end := start + pageSize
	if end > len(ordered) {
		end = len(ordered)
	}
	out := make([]*domainchat.Message, 0, end-start)
	for _, msg := range ordered[start:end] {
		out = append(out, cloneMessage(msg))
	}
	return out, nil
}

func (l *MessageLog) Latest(ctx context.Context, conversationID domainchat.ConversationID) (*domainchat.Message, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ordered := l.sortedDesc(conversationID)
	if len(ordered) == 0 {
		return nil, nil
	}
	return cloneMessage(ordered[0]), nil
}

func (l *MessageLog) MarkRead(ctx context.Context, conversationID domainchat.ConversationID, recipientID domainuser.ID) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var marked int64
	for _, id := range l.byConv[conversationID] {
		msg := l.byID[id]
		if msg == nil || msg.Read || msg.RecipientID != recipientID {
			continue
		}
		msg.Read = true
		marked++
	}
	return marked, nil
}

func (l *MessageLog) AppendAttachment(ctx context.Context, id domainchat.MessageID, att domainchat.Attachment) (*domainchat.Message, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	msg, ok := l.byID[id]
	if !ok {
		return nil, domainchat.ErrMessageNotFound
	}
	if err := msg.AppendAttachment(att); err != nil {
		return nil, err
	}
	return cloneMessage(msg), nil
}

func (l *MessageLog) Delete(ctx context.Context, id domainchat.MessageID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	msg, ok := l.byID[id]
	if !ok {
		return domainchat.ErrMessageNotFound
	}
	delete(l.byID, id)
	ids := l.byConv[msg.ConversationID]
	for i, candidate := range ids {
		if candidate == id {
			l.byConv[msg.ConversationID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

func (l *MessageLog) CountUnread(ctx context.Context, recipientID domainuser.ID, conversationID domainchat.ConversationID) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var count int64
	if conversationID != "" {
		for _, id := range l.byConv[conversationID] {
			if msg := l.byID[id]; msg != nil && !msg.Read && msg.RecipientID == recipientID {
				count++
			}
		}
		return count, nil
	}
	for _, msg := range l.byID {
		if !msg.Read && msg.RecipientID == recipientID {
			count++
		}
	}
	return count, nil
}

// sortedDesc orders a conversation's messages by (created_at, seq)
// descending. Callers must hold the lock.
func (l *MessageLog) sortedDesc(conversationID domainchat.ConversationID) []*domainchat.Message {
	ids := l.byConv[conversationID]
	ordered := make([]*domainchat.Message, 0, len(ids))
	for _, id := range ids {
		if msg := l.byID[id]; msg != nil {
			ordered = append(ordered, msg)
		}
	}
	sort.Slice(ordered, func(i, j int) bool {
		if !ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].CreatedAt.After(ordered[j].CreatedAt)
		}
		return ordered[i].Seq > ordered[j].Seq
	})
	return ordered
}

func cloneMessage(msg *domainchat.Message) *domainchat.Message {
	clone := *msg
	clone.Attachments = append([]domainchat.Attachment(nil), msg.Attachments...)
	if msg.Offer != nil {
		offer := *msg.Offer
		clone.Offer = &offer
	}
	return &clone
}
