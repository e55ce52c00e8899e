package state

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/looplab/fsm"
)

// 集成连接状态
const (
	StateUnconfigured = "unconfigured"
	StateConfigured   = "configured"
	StateConnected    = "connected"
	StateFailed       = "failed"
)

// 事件
const (
	EventConfigure = "configure"
	EventSucceed   = "succeed"
	EventFail      = "fail"
)

// 集成名称
const (
	LinkFeishu = "feishu"
	LinkAI     = "ai"
)

// LinkState 一个外部集成的连接状态
type LinkState struct {
	Link      string    `json:"link"`
	State     string    `json:"state"`
	Since     time.Time `json:"since"`
	LastError string    `json:"last_error,omitempty"`
}

// Machine 单个集成的状态机
type Machine struct {
	mu            sync.RWMutex
	link          string
	fsm           *fsm.FSM
	state         *LinkState
	onStateChange func(link string, from, to string)
}

// NewMachine 创建状态机
func NewMachine(link, initialState string, onStateChange func(link string, from, to string)) *Machine {
	if initialState == "" {
		initialState = StateUnconfigured
	}

	m := &Machine{
		link:          link,
		onStateChange: onStateChange,
		state: &LinkState{
			Link:  link,
			State: initialState,
			Since: time.Now(),
		},
	}

	m.fsm = fsm.NewFSM(
		initialState,
		fsm.Events{
			// 保存配置后回到待验证
			{Name: EventConfigure, Src: []string{StateUnconfigured, StateConfigured, StateConnected, StateFailed}, Dst: StateConfigured},

			// 调用结果
			{Name: EventSucceed, Src: []string{StateConfigured, StateConnected, StateFailed}, Dst: StateConnected},
			{Name: EventFail, Src: []string{StateConfigured, StateConnected, StateFailed}, Dst: StateFailed},
		},
		fsm.Callbacks{
			"after_event": func(ctx context.Context, e *fsm.Event) {
				if m.onStateChange != nil && e.Src != e.Dst {
					m.onStateChange(m.link, e.Src, e.Dst)
				}
			},
		},
	)

	return m
}

// CurrentState 获取当前状态
func (m *Machine) CurrentState() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fsm.Current()
}

// GetState 获取完整状态副本
func (m *Machine) GetState() LinkState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stateCopy := *m.state
	stateCopy.State = m.fsm.Current()
	return stateCopy
}

// Trigger 触发事件，停留在原状态不视为错误
func (m *Machine) Trigger(event, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.fsm.Current()
	if err := m.fsm.Event(context.Background(), event); err != nil {
		var noTransition fsm.NoTransitionError
		if !errors.As(err, &noTransition) {
			return fmt.Errorf("trigger event %s: %w", event, err)
		}
	}

	m.state.LastError = lastError
	if to := m.fsm.Current(); to != from {
		m.state.State = to
		m.state.Since = time.Now()
	}
	return nil
}

// CanTransition 检查是否可以转换
func (m *Machine) CanTransition(event string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fsm.Can(event)
}

// Manager 状态机管理器
type Manager struct {
	mu       sync.RWMutex
	machines map[string]*Machine
	onChange func(link string, from, to string)
}

// NewManager 创建管理器
func NewManager(onChange func(link string, from, to string)) *Manager {
	return &Manager{
		machines: make(map[string]*Machine),
		onChange: onChange,
	}
}

// GetOrCreate 获取或创建状态机
func (m *Manager) GetOrCreate(link string) *Machine {
	m.mu.Lock()
	defer m.mu.Unlock()

	if machine, ok := m.machines[link]; ok {
		return machine
	}

	machine := NewMachine(link, StateUnconfigured, m.onChange)
	m.machines[link] = machine
	return machine
}

// Get 获取状态机
func (m *Manager) Get(link string) (*Machine, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	machine, ok := m.machines[link]
	return machine, ok
}

// GetAllStates 获取所有集成状态，按名称排序
func (m *Manager) GetAllStates() []LinkState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	states := make([]LinkState, 0, len(m.machines))
	for _, machine := range m.machines {
		states = append(states, machine.GetState())
	}
	sort.Slice(states, func(i, j int) bool { return states[i].Link < states[j].Link })
	return states
}
