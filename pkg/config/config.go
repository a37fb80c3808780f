package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config agrupa la configuración de la aplicación (lectura vía Viper desde env y opcionalmente archivo).
type Config struct {
	App   AppConfig
	DB    DBConfig
	JWT   JWTConfig
	HTTP  HTTPConfig
	Redis RedisConfig
	SAT   SATConfig
}

// SATConfig configuración para la descarga masiva de CFDIs vía Web Services del SAT.
type SATConfig struct {
	// Endpoints de los tres servicios SOAP. Se dejan configurables para poder
	// apuntar a un servicio simulado en pruebas.
	URLSolicita string
	URLVerifica string
	URLDescarga string

	MaxEsperaMinutos      int // tope del ciclo solicitar→verificar→descargar
	IntervaloPollSegundos int // intervalo fijo entre verificaciones

	// ClaveCifrado es la llave simétrica con la que se cifran las contraseñas
	// de la e.firma en base de datos.
	ClaveCifrado string
}

// MaxEspera devuelve el tope de espera como duración.
func (c SATConfig) MaxEspera() time.Duration {
	return time.Duration(c.MaxEsperaMinutos) * time.Minute
}

// IntervaloPoll devuelve el intervalo de verificación como duración.
func (c SATConfig) IntervaloPoll() time.Duration {
	return time.Duration(c.IntervaloPollSegundos) * time.Second
}

// AppConfig configuración general de la aplicación.
type AppConfig struct {
	Env  string // development, staging, production
	Name string
}

// DBConfig configuración de PostgreSQL.
// Si DatabaseURL no está vacío, se usa como connection string completo.
type DBConfig struct {
	DatabaseURL string
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
}

// ConnectionString devuelve el DSN a usar: DATABASE_URL si está definido, si no el construido con DSN().
func (c DBConfig) ConnectionString() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return c.DSN()
}

// DSN devuelve el connection string para PostgreSQL con URL encoding para caracteres especiales.
func (c DBConfig) DSN() string {
	userInfo := url.UserPassword(c.User, c.Password)

	u := &url.URL{
		Scheme:   "postgres",
		User:     userInfo,
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.DBName,
		RawQuery: fmt.Sprintf("sslmode=%s", c.SSLMode),
	}

	return u.String()
}

// JWTConfig configuración de JWT.
type JWTConfig struct {
	Secret     string
	Expiration int // minutos
	Issuer     string
}

// HTTPConfig configuración del servidor HTTP.
type HTTPConfig struct {
	Host string
	Port int
}

// Addr devuelve la dirección de escucha (host:port).
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RedisConfig configuración del cliente Redis (lock de sync y caché de estado).
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Load lee la configuración desde variables de entorno (y opcionalmente desde archivo).
// Las env vars tienen prioridad. Nombres esperados: APP_ENV, DB_HOST, SAT_URL_SOLICITA, etc.
func Load() (*Config, error) {
	v := viper.New()

	// Opcional: archivo de configuración (.env o config.env)
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // ignoramos error si no existe

	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	_ = v.ReadInConfig() // ignoramos error si no existe

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{
		App: AppConfig{
			Env:  getString(v, "APP_ENV", "development"),
			Name: getString(v, "APP_NAME", "mifiscal"),
		},
		DB: DBConfig{
			DatabaseURL: getString(v, "DATABASE_URL", ""),
			Host:        getString(v, "DB_HOST", "localhost"),
			Port:        getInt(v, "DB_PORT", 5432),
			User:        getString(v, "DB_USER", "postgres"),
			Password:    getString(v, "DB_PASSWORD", ""),
			DBName:      getString(v, "DB_NAME", "mifiscal"),
			SSLMode:     getString(v, "DB_SSLMODE", "disable"),
		},
		JWT: JWTConfig{
			Secret:     getString(v, "JWT_SECRET", ""),
			Expiration: getInt(v, "JWT_EXPIRATION_MINUTES", 60),
			Issuer:     getString(v, "JWT_ISSUER", "mifiscal"),
		},
		HTTP: HTTPConfig{
			Host: getString(v, "HTTP_HOST", "0.0.0.0"),
			Port: getInt(v, "HTTP_PORT", 8080),
		},
		Redis: RedisConfig{
			Addr:     getString(v, "REDIS_ADDR", "localhost:6379"),
			Password: getString(v, "REDIS_PASSWORD", ""),
			DB:       getInt(v, "REDIS_DB", 0),
		},
		SAT: SATConfig{
			URLSolicita: getString(v, "SAT_URL_SOLICITA",
				"https://cfdidescargamasiva.clouda.sat.gob.mx/SolicitaDescargaService.svc"),
			URLVerifica: getString(v, "SAT_URL_VERIFICA",
				"https://cfdidescargamasiva.clouda.sat.gob.mx/VerificaSolicitudDescargaService.svc"),
			URLDescarga: getString(v, "SAT_URL_DESCARGA",
				"https://cfdidescargamasiva.clouda.sat.gob.mx/DescargaMasivaTercerosService.svc"),
			MaxEsperaMinutos:      getInt(v, "SAT_MAX_ESPERA_MINUTOS", 30),
			IntervaloPollSegundos: getInt(v, "SAT_INTERVALO_POLL_SEGUNDOS", 30),
			ClaveCifrado:          getString(v, "SAT_CLAVE_CIFRADO", ""),
		},
	}

	return cfg, nil
}

func getString(v *viper.Viper, key, def string) string {
	if v.IsSet(key) {
		return v.GetString(key)
	}
	return def
}

func getInt(v *viper.Viper, key string, def int) int {
	if v.IsSet(key) {
		switch v.Get(key).(type) {
		case int:
			return v.GetInt(key)
		case string:
			n, _ := strconv.Atoi(v.GetString(key))
			return n
		default:
			return v.GetInt(key)
		}
	}
	return def
}
