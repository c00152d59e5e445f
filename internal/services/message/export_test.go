package message

// TypingThrottles returns the number of live typing throttles.
func (s *Service) TypingThrottles() int {
	s.typingMu.Lock()
	defer s.typingMu.Unlock()
	return len(s.typing)
}
