// Package access decide quem pode usar os comandos administrativos.
package access

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// AllowList lê o arquivo de administradores (um id por linha) e guarda o
// resultado em cache até o arquivo mudar. Falha de leitura nega acesso.
type AllowList struct {
	path   string
	logger *zap.Logger

	mu  sync.Mutex
	ids map[int64]struct{}
}

func NewAllowList(path string, logger *zap.Logger) *AllowList {
	return &AllowList{path: path, logger: logger}
}

// IsAuthorized informa se o usuário está na lista. Quando o arquivo não pode
// ser lido devolve false junto com o erro, e tenta de novo na próxima chamada.
func (a *AllowList) IsAuthorized(userID int64) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.ids == nil {
		ids, err := a.read()
		if err != nil {
			return false, err
		}
		a.ids = ids
	}
	_, ok := a.ids[userID]
	return ok, nil
}

// Invalidate descarta o cache; a próxima consulta relê o arquivo.
func (a *AllowList) Invalidate() {
	a.mu.Lock()
	a.ids = nil
	a.mu.Unlock()
}

// Watch invalida o cache sempre que o arquivo é criado, alterado, removido ou
// renomeado. Observa o diretório porque editores costumam trocar o arquivo inteiro.
func (a *AllowList) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("erro ao criar watcher da lista de administradores: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(a.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("erro ao observar %s: %w", dir, err)
	}
	target := filepath.Clean(a.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
				event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				a.Invalidate()
				a.logger.Info("lista de administradores alterada", zap.String("op", event.Op.String()))
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			// sem garantia de eventos, melhor reler na próxima consulta
			a.Invalidate()
			a.logger.Warn("erro no watcher da lista de administradores", zap.Error(err))
		}
	}
}

func (a *AllowList) read() (map[int64]struct{}, error) {
	f, err := os.Open(a.path)
	if err != nil {
		return nil, fmt.Errorf("erro ao ler lista de administradores: %w", err)
	}
	defer f.Close()

	ids := make(map[int64]struct{})
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		id, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			a.logger.Warn("id inválido na lista de administradores, ignorando",
				zap.Int("line", line), zap.String("value", text))
			continue
		}
		ids[id] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("erro ao ler lista de administradores: %w", err)
	}

	a.logger.Debug("lista de administradores carregada", zap.Int("count", len(ids)))
	return ids, nil
}
