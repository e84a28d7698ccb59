package anthropic

import "context"

// MockClient replays scripted turns. Each call to StreamMessage pops
// the next ScriptedTurn, emits its events, and returns its result or
// error. Used by orchestrator tests.
type MockClient struct {
	Turns []ScriptedTurn
	Calls int
	// Requests records every StreamRequest received, in order.
	Requests []StreamRequest
}

type ScriptedTurn struct {
	Events []StreamEvent
	Result *MessageResult
	Err    error
}

func (m *MockClient) StreamMessage(ctx context.Context, req StreamRequest, onEvent func(StreamEvent) error) (*MessageResult, error) {
	m.Calls++
	m.Requests = append(m.Requests, req)
	if len(m.Turns) == 0 {
		return &MessageResult{StopReason: "end_turn"}, nil
	}
	turn := m.Turns[0]
	m.Turns = m.Turns[1:]
	if turn.Err != nil {
		return nil, turn.Err
	}
	for _, ev := range turn.Events {
		if onEvent != nil {
			if err := onEvent(ev); err != nil {
				return nil, err
			}
		}
	}
	return turn.Result, nil
}
