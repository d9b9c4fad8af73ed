package conversation

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single rendered transcript entry.
type Message struct {
	Role    Role
	Content string
}

// Exchange is one instruction sent to the model and the response it gave.
type Exchange struct {
	Instruction string
	Response    string
}

// TokenCounter counts tokens in text content.
type TokenCounter interface {
	Count(content string) (int, error)
}

// EstimateCounter approximates tokens as one per four bytes.
type EstimateCounter struct{}

// Count implements TokenCounter.
func (EstimateCounter) Count(content string) (int, error) {
	return len(content) / 4, nil
}

// Transcript is a bounded, copy-on-write conversation history.
// The zero value is an empty transcript with no budget.
type Transcript struct {
	System string
	// Budget is the token ceiling. Zero or negative disables trimming.
	Budget int

	pairs   []Exchange
	counter TokenCounter
}

// New returns an empty transcript with the given system framing.
func New(system string, budget int) Transcript {
	return Transcript{System: system, Budget: budget}
}

// WithCounter returns a copy of t that uses counter for token estimates.
func (t Transcript) WithCounter(counter TokenCounter) Transcript {
	t.counter = counter
	return t
}

// Append returns a new transcript with the pair added and older pairs
// trimmed to fit the budget. The receiver is left unchanged.
func (t Transcript) Append(instruction, response string) Transcript {
	pairs := make([]Exchange, len(t.pairs), len(t.pairs)+1)
	copy(pairs, t.pairs)
	pairs = append(pairs, Exchange{Instruction: instruction, Response: response})

	next := t
	next.pairs = pairs
	next.trim()
	return next
}

// trim drops the oldest pairs while over budget, keeping at least one.
func (t *Transcript) trim() {
	if t.Budget <= 0 {
		return
	}
	total := t.Tokens()
	for total > t.Budget && len(t.pairs) > 1 {
		total -= t.count(t.pairs[0].Instruction) + t.count(t.pairs[0].Response)
		t.pairs = t.pairs[1:]
	}
}

// Exchanges returns a copy of the retained pairs, oldest first.
func (t Transcript) Exchanges() []Exchange {
	out := make([]Exchange, len(t.pairs))
	copy(out, t.pairs)
	return out
}

// Messages renders the transcript as system, then alternating user and
// assistant messages.
func (t Transcript) Messages() []Message {
	msgs := make([]Message, 0, 1+2*len(t.pairs))
	if t.System != "" {
		msgs = append(msgs, Message{Role: RoleSystem, Content: t.System})
	}
	for _, p := range t.pairs {
		msgs = append(msgs,
			Message{Role: RoleUser, Content: p.Instruction},
			Message{Role: RoleAssistant, Content: p.Response},
		)
	}
	return msgs
}

// Tokens returns the estimated token count including the system framing.
func (t Transcript) Tokens() int {
	total := t.count(t.System)
	for _, p := range t.pairs {
		total += t.count(p.Instruction) + t.count(p.Response)
	}
	return total
}

// Len returns the number of retained pairs.
func (t Transcript) Len() int {
	return len(t.pairs)
}

func (t Transcript) count(s string) int {
	counter := t.counter
	if counter == nil {
		counter = EstimateCounter{}
	}
	n, err := counter.Count(s)
	if err != nil {
		n, _ = EstimateCounter{}.Count(s)
	}
	return n
}
