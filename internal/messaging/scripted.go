package messaging

import (
	"context"
	"fmt"
	"sync"

	fbmessaging "firebase.google.com/go/v4/messaging"
)

//ScriptedClient In-memory PushSender answering per token. Tokens without a script are delivered.
type ScriptedClient struct {
	mu       sync.Mutex
	outcomes map[string]ErrorKind
	batchErr error
	sent     []*fbmessaging.Message
	calls    int
}

//NewScriptedClient -_-
func NewScriptedClient() *ScriptedClient {
	return &ScriptedClient{outcomes: map[string]ErrorKind{}}
}

//FailToken Every message to token fails with kind.
func (s *ScriptedClient) FailToken(token string, kind ErrorKind) *ScriptedClient {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes[token] = kind
	return s
}

//FailBatch Every SendBatch call fails with err.
func (s *ScriptedClient) FailBatch(err error) *ScriptedClient {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batchErr = err
	return s
}

//SendBatch -_-
func (s *ScriptedClient) SendBatch(ctx context.Context, msgs []*fbmessaging.Message) ([]SendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if s.batchErr != nil {
		return nil, s.batchErr
	}

	results := make([]SendResult, len(msgs))
	for i, msg := range msgs {
		s.sent = append(s.sent, msg)
		if kind, ok := s.outcomes[msg.Token]; ok && kind != KindNone {
			results[i] = SendResult{Kind: kind, Err: fmt.Errorf("scripted failure: %v", kind)}
			continue
		}
		results[i] = SendResult{Success: true, MessageID: fmt.Sprintf("msg-%d", len(s.sent))}
	}
	return results, nil
}

//Sent Messages handed over so far, in order.
func (s *ScriptedClient) Sent() []*fbmessaging.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*fbmessaging.Message(nil), s.sent...)
}

//Calls Number of SendBatch calls.
func (s *ScriptedClient) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
