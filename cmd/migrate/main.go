// Aplica las migraciones de esquema embebidas en el binario.
//
// Uso:
//
//	migrate up      aplica todas las pendientes
//	migrate down    revierte la última
package main

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/tu-usuario/mifiscal-api/pkg/config"
	"github.com/tu-usuario/mifiscal-api/pkg/logger"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}
	log := logger.New(logger.Config{Env: cfg.App.Env, Level: "info"})

	direccion := "up"
	if len(os.Args) > 1 {
		direccion = os.Args[1]
	}

	db, err := sql.Open("pgx", cfg.DB.ConnectionString())
	if err != nil {
		log.Fatal().Err(err).Msg("abrir conexión a PostgreSQL")
	}
	defer db.Close()

	migrator, err := nuevoMigrator(db)
	if err != nil {
		log.Fatal().Err(err).Msg("preparar migrador")
	}

	switch direccion {
	case "up":
		err = migrator.Up()
	case "down":
		err = migrator.Steps(-1)
	default:
		log.Fatal().Str("arg", direccion).Msg("uso: migrate [up|down]")
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatal().Err(err).Str("direccion", direccion).Msg("aplicar migraciones")
	}

	version, dirty, _ := migrator.Version()
	log.Info().Uint("version", version).Bool("dirty", dirty).Msg("migraciones aplicadas")
}

func nuevoMigrator(db *sql.DB) (*migrate.Migrate, error) {
	sub, err := fs.Sub(embeddedMigrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("abrir migraciones embebidas: %w", err)
	}
	source, err := iofs.New(sub, ".")
	if err != nil {
		return nil, fmt.Errorf("crear source: %w", err)
	}
	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return nil, fmt.Errorf("crear driver: %w", err)
	}
	return migrate.NewWithInstance("iofs", source, "postgres", driver)
}
