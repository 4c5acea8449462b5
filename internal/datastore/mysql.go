package datastore

import (
	"fmt"
	"strconv"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/tphakala/birdnet-artifacts/internal/conf"
	"github.com/tphakala/birdnet-artifacts/internal/errors"
	"github.com/tphakala/birdnet-artifacts/internal/logger"
)

// MySQLStore implements DataStore for MySQL
type MySQLStore struct {
	DataStore
}

func validateMySQLConfig(settings *conf.Settings) error {
	m := settings.Database.MySQL
	if m.Host == "" || m.Database == "" || m.Username == "" {
		return errors.Newf("mysql host, database and username must be set").
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Context("setting", "database.mysql").
			Build()
	}
	return nil
}

// mysqlDSN builds the driver connection string. clientFoundRows makes an
// update report matched rows, so rewriting identical paths still counts one.
func mysqlDSN(m conf.MySQLSettings) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local&clientFoundRows=true",
		m.Username, m.Password, m.Host, strconv.Itoa(m.Port), m.Database)
}

// Open sets up the MySQL database connection and migrates the schema.
func (store *MySQLStore) Open() error {
	if err := validateMySQLConfig(store.Settings); err != nil {
		return err
	}

	m := store.Settings.Database.MySQL
	db, err := gorm.Open(mysql.Open(mysqlDSN(m)), gormConfig(store.Settings))
	if err != nil {
		GetLogger().Error("failed to open MySQL database",
			logger.String("host", m.Host),
			logger.Int("port", m.Port),
			logger.String("database", m.Database),
			logger.Error(err))
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "open_mysql").
			Context("host", m.Host).
			Build()
	}

	store.DB = db
	return performAutoMigration(db, "MySQL", fmt.Sprintf("%s:%d/%s", m.Host, m.Port, m.Database))
}
