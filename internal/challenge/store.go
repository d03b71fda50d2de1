// Package challenge хранит состояние незавершенных WebAuthn-церемоний:
// на пользователя существует не более одного активного челленджа.
//
// Повторный Put для того же пользователя перезаписывает предыдущий челлендж:
// действует правило "последняя церемония побеждает". Две параллельные
// церемонии одного пользователя (например, две вкладки браузера) приводят
// к тому, что первая завершится ошибкой ErrNotFound — это известное
// и задокументированное поведение, а не дефект.
package challenge

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound челлендж отсутствует или уже использован.
var ErrNotFound = errors.New("challenge: not found")

// Store описывает хранилище челленджей с атомарным одноразовым изъятием.
type Store interface {
	// Put сохраняет челлендж пользователя, перезаписывая существующий.
	Put(ctx context.Context, userUID string, data []byte) error
	// TakeOnce атомарно читает и удаляет челлендж. Второй вызов для того же
	// пользователя возвращает ErrNotFound — этим обеспечивается одноразовость.
	TakeOnce(ctx context.Context, userUID string) ([]byte, error)
}

// MemoryStore хранит челленджи в памяти процесса. Подходит для одного
// экземпляра сервиса и для тестов.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

// NewMemoryStore создает пустое хранилище в памяти.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// Put сохраняет челлендж, перезаписывая существующий.
func (s *MemoryStore) Put(_ context.Context, userUID string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[userUID] = data
	return nil
}

// TakeOnce атомарно читает и удаляет челлендж.
func (s *MemoryStore) TakeOnce(_ context.Context, userUID string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.data[userUID]
	if !ok {
		return nil, ErrNotFound
	}
	delete(s.data, userUID)
	return data, nil
}
