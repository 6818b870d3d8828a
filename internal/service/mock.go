package service

// MockManager is a test helper implementing ServiceManager.
type MockManager struct {
	StartFunc   func(unitName string) error
	StopFunc    func(unitName string) error
	RestartFunc func(unitName string) error
	StateFunc   func(unitName string) (State, error)
}

func (m *MockManager) Start(unitName string) error {
	if m != nil && m.StartFunc != nil {
		return m.StartFunc(unitName)
	}
	return nil
}

func (m *MockManager) Stop(unitName string) error {
	if m != nil && m.StopFunc != nil {
		return m.StopFunc(unitName)
	}
	return nil
}

func (m *MockManager) Restart(unitName string) error {
	if m != nil && m.RestartFunc != nil {
		return m.RestartFunc(unitName)
	}
	return nil
}

func (m *MockManager) State(unitName string) (State, error) {
	if m != nil && m.StateFunc != nil {
		return m.StateFunc(unitName)
	}
	return StateUnknown, nil
}
