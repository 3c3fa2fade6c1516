package service

// PooledConnectors reports how many connectors the pool holds open.
func (s *DatabaseService) PooledConnectors() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.activeConnectors)
}
