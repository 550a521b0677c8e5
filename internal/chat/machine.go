package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/schoolchat/knowledge-engine/internal/answer"
	"github.com/schoolchat/knowledge-engine/internal/inquiry"
	"github.com/schoolchat/knowledge-engine/internal/metrics"
	"github.com/schoolchat/knowledge-engine/internal/session"
)

// Answerer is the slice of the answer engine the chat flow needs.
type Answerer interface {
	Answer(ctx context.Context, question string, opts answer.Options) (answer.Result, error)
}

// TurnResult is everything the caller needs to render one bot reply.
type TurnResult struct {
	Response             string            `json:"response"`
	State                string            `json:"state"`
	Mode                 string            `json:"mode"`
	Options              []string          `json:"options,omitempty"`
	CollectedData        map[string]string `json:"collected_data,omitempty"`
	Sources              []answer.Source   `json:"sources,omitempty"`
	RequiresInput        bool              `json:"requires_input"`
	ConversationComplete bool              `json:"conversation_complete"`
}

// Machine advances one user's conversation per Turn call. Turns for the same
// user are serialized; different users proceed concurrently.
type Machine struct {
	store     *session.TieredStore
	answerer  Answerer
	emitter   inquiry.Emitter
	namespace string
	logger    *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
	now   func() time.Time
}

// NewMachine wires the conversation flow.
func NewMachine(store *session.TieredStore, answerer Answerer, emitter inquiry.Emitter, namespace string, logger *zap.Logger) *Machine {
	return &Machine{
		store:     store,
		answerer:  answerer,
		emitter:   emitter,
		namespace: namespace,
		logger:    logger.Named("chat"),
		locks:     make(map[string]*sync.Mutex),
		now:       time.Now,
	}
}

func (m *Machine) userLock(userID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[userID] = lock
	}
	return lock
}

// Turn processes one user message and returns the bot's reply. The session
// is persisted before the reply is returned; a persistence failure is logged
// but never blocks the reply, since the secondary tier already absorbed it.
func (m *Machine) Turn(ctx context.Context, userID, message string) (TurnResult, error) {
	if userID == "" {
		return TurnResult{}, errors.New("user id is required")
	}
	lock := m.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	sess, err := m.store.Get(ctx, userID)
	if errors.Is(err, session.ErrNotFound) {
		sess = m.newSession(userID)
	} else if err != nil {
		return TurnResult{}, fmt.Errorf("load session: %w", err)
	}

	result, err := m.step(ctx, &sess, strings.TrimSpace(message))
	if err != nil {
		return TurnResult{}, err
	}
	metrics.ObserveChatTurn(sess.Mode)

	sess.LastActiveAt = m.now().UTC()
	if _, err := m.store.Put(ctx, sess); err != nil {
		// Losing the reply is worse than losing one turn of durability.
		m.logger.Warn("session persist failed", zap.String("user_id", userID), zap.Error(err))
	}

	result.State = sess.State
	result.Mode = sess.Mode
	result.CollectedData = sess.CollectedData
	return result, nil
}

// Reset discards the user's conversation so the next message starts fresh.
func (m *Machine) Reset(ctx context.Context, userID string) error {
	if userID == "" {
		return errors.New("user id is required")
	}
	lock := m.userLock(userID)
	lock.Lock()
	defer lock.Unlock()
	return m.store.Delete(ctx, userID)
}

func (m *Machine) newSession(userID string) session.Session {
	now := m.now().UTC()
	return session.Session{
		UserID:        userID,
		State:         StateInitial,
		Mode:          session.ModeLeadCapture,
		CollectedData: map[string]string{},
		CreatedAt:     now,
		LastActiveAt:  now,
	}
}

// step applies one transition. It mutates sess and returns the reply.
func (m *Machine) step(ctx context.Context, sess *session.Session, message string) (TurnResult, error) {
	switch sess.State {
	case StateInitial:
		// The first message's content is a greeting; it is not parsed.
		sess.State = StateParentType
		return TurnResult{Response: greeting, Options: parentTypeOptions, RequiresInput: true}, nil

	case StateParentType:
		choice, ok := matchOption(message, parentTypeOptions)
		if !ok {
			return TurnResult{Response: invalidOptionReply, Options: parentTypeOptions, RequiresInput: true}, nil
		}
		sess.CollectedData[keyParentType] = choice
		sess.State = StateSchoolType
		return TurnResult{Response: askSchoolType, Options: schoolTypeOptions, RequiresInput: true}, nil

	case StateSchoolType:
		choice, ok := matchOption(message, schoolTypeOptions)
		if !ok {
			return TurnResult{Response: invalidOptionReply, Options: schoolTypeOptions, RequiresInput: true}, nil
		}
		sess.CollectedData[keySchoolType] = choice
		sess.State = StateCollectName
		return TurnResult{Response: askName, RequiresInput: true}, nil

	case StateCollectName:
		name, ok := normalizeName(message)
		if !ok {
			return TurnResult{Response: invalidNameReply, RequiresInput: true}, nil
		}
		sess.CollectedData[keyName] = name
		sess.State = StateCollectMobile
		return TurnResult{Response: askMobile, RequiresInput: true}, nil

	case StateCollectMobile:
		mobile, ok := normalizeMobile(message)
		if !ok {
			return TurnResult{Response: invalidMobileReply, RequiresInput: true}, nil
		}
		sess.CollectedData[keyMobile] = mobile
		sess.State = StateKnowMore
		return TurnResult{Response: askKnowMore, Options: yesNoOptions, RequiresInput: true}, nil

	case StateKnowMore:
		choice, ok := matchOption(message, yesNoOptions)
		if !ok {
			return TurnResult{Response: askKnowMore, Options: yesNoOptions, RequiresInput: true}, nil
		}
		if choice == "Yes" {
			sess.State = StateKnowledgeQuery
			sess.Mode = session.ModeKnowledgeQuery
			return TurnResult{Response: knowledgeIntro, RequiresInput: true}, nil
		}
		sess.State = StateEnd
		m.emitInquiry(ctx, sess)
		return TurnResult{Response: m.thankYou(sess), ConversationComplete: true}, nil

	case StateKnowledgeQuery:
		return m.answerQuestion(ctx, message)

	case StateEnd:
		return TurnResult{Response: conversationOverReply, ConversationComplete: true}, nil

	default:
		// Unknown persisted state, likely from an older deployment. Restart.
		m.logger.Warn("unknown conversation state, restarting",
			zap.String("user_id", sess.UserID),
			zap.String("state", sess.State),
		)
		*sess = m.newSession(sess.UserID)
		sess.State = StateParentType
		return TurnResult{Response: greeting, Options: parentTypeOptions, RequiresInput: true}, nil
	}
}

func (m *Machine) answerQuestion(ctx context.Context, question string) (TurnResult, error) {
	if question == "" {
		return TurnResult{Response: "What would you like to know about the school?", RequiresInput: true}, nil
	}
	result, err := m.answerer.Answer(ctx, question, answer.Options{Namespace: m.namespace})
	if err != nil {
		return TurnResult{}, fmt.Errorf("answer question: %w", err)
	}
	return TurnResult{Response: result.Answer, Sources: result.Sources, RequiresInput: true}, nil
}

// emitInquiry hands the captured lead to the emitter. Emission failure never
// reaches the user; the conversation still ends cleanly.
func (m *Machine) emitInquiry(ctx context.Context, sess *session.Session) {
	inq := inquiry.Inquiry{
		UserID:     sess.UserID,
		ParentType: sess.CollectedData[keyParentType],
		SchoolType: sess.CollectedData[keySchoolType],
		Name:       sess.CollectedData[keyName],
		Mobile:     sess.CollectedData[keyMobile],
		CreatedAt:  m.now().UTC(),
	}
	if err := m.emitter.Emit(ctx, inq); err != nil {
		m.logger.Error("inquiry emission failed",
			zap.String("user_id", sess.UserID),
			zap.Error(err),
		)
	}
}

func (m *Machine) thankYou(sess *session.Session) string {
	data := sess.CollectedData
	return fmt.Sprintf(
		"Thank you, %s! Here is a summary of your details:\n"+
			"- Parent type: %s\n"+
			"- School type: %s\n"+
			"- Mobile: %s\n"+
			"Our admissions team will contact you shortly. Have a great day!",
		data[keyName], data[keyParentType], data[keySchoolType], data[keyMobile],
	)
}
