// Package rediscache implementa el lock distribuido de sincronización y el
// caché de estado sobre Redis.
//
// El lock serializa las corridas por usuario: SETNX con un token aleatorio y
// TTL de seguridad, liberación con script Lua para no soltar un lock ajeno.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/tu-usuario/mifiscal-api/internal/domain/entity"
	"github.com/tu-usuario/mifiscal-api/pkg/config"
)

const (
	prefijoLock   = "sync:lock:"
	prefijoEstado = "sync:status:"

	// TTLLock cubre la corrida más larga posible (espera máxima del SAT por
	// dirección, más procesamiento) para que un proceso caído no deje el
	// lock colgado para siempre.
	TTLLock = 2 * time.Hour

	// TTLEstado mantiene el último estado consultable sin ir a la DB.
	TTLEstado = 5 * time.Minute
)

const scriptLiberarLock = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// NewClient crea el cliente Redis y verifica conectividad.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("conectar a Redis: %w", err)
	}
	return client, nil
}

// Cache agrupa el lock de sincronización y el caché de estado.
type Cache struct {
	client  *redis.Client
	liberar *redis.Script
}

// NewCache construye el adaptador sobre un cliente ya conectado.
func NewCache(client *redis.Client) *Cache {
	return &Cache{
		client:  client,
		liberar: redis.NewScript(scriptLiberarLock),
	}
}

// AdquirirLock intenta tomar el lock de sincronización del usuario.
// Devuelve el token de liberación y false si otro proceso lo tiene.
func (c *Cache) AdquirirLock(ctx context.Context, userID string) (string, bool, error) {
	if userID == "" {
		return "", false, errors.New("userID vacío")
	}
	token := uuid.NewString()
	ok, err := c.client.SetNX(ctx, prefijoLock+userID, token, TTLLock).Result()
	if err != nil {
		return "", false, fmt.Errorf("adquirir lock: %w", err)
	}
	return token, ok, nil
}

// LiberarLock suelta el lock solo si el token coincide (el script evita
// liberar un lock tomado por otra corrida tras expirar el TTL).
func (c *Cache) LiberarLock(ctx context.Context, userID, token string) error {
	if userID == "" || token == "" {
		return nil
	}
	return c.liberar.Run(ctx, c.client, []string{prefijoLock + userID}, token).Err()
}

// GuardarEstado cachea la corrida más reciente del usuario.
func (c *Cache) GuardarEstado(ctx context.Context, userID string, h *entity.SyncHistory) error {
	datos, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("serializar estado: %w", err)
	}
	return c.client.Set(ctx, prefijoEstado+userID, datos, TTLEstado).Err()
}

// ObtenerEstado devuelve la corrida cacheada, o nil si no hay entrada (miss).
func (c *Cache) ObtenerEstado(ctx context.Context, userID string) (*entity.SyncHistory, error) {
	datos, err := c.client.Get(ctx, prefijoEstado+userID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("leer estado: %w", err)
	}
	var h entity.SyncHistory
	if err := json.Unmarshal(datos, &h); err != nil {
		return nil, fmt.Errorf("deserializar estado: %w", err)
	}
	return &h, nil
}

// InvalidarEstado borra la entrada cacheada; se llama en cada transición terminal.
func (c *Cache) InvalidarEstado(ctx context.Context, userID string) error {
	return c.client.Del(ctx, prefijoEstado+userID).Err()
}
