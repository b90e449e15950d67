package manifest

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/getsentry/raven-go"
	"github.com/kpango/glg"
	// Registers the "sqlite" driver
	_ "modernc.org/sqlite"

	"github.com/rking788/objective-tracker/models"
)

const (
	itemDefinitionQuery      = "SELECT json FROM DestinyInventoryItemDefinition WHERE id = ?"
	milestoneDefinitionQuery = "SELECT json FROM DestinyMilestoneDefinition WHERE id = ?"
)

// Database gives read access to the installed world content. It holds no connection until
// a dataset has been installed, lookups return nothing in the meantime.
type Database struct {
	path string

	mu            sync.RWMutex
	db            *sql.DB
	ItemStmt      *sql.Stmt
	MilestoneStmt *sql.Stmt
	items         *sync.Map
	milestones    *sync.Map
}

type displayProperties struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type itemRow struct {
	DisplayProperties   displayProperties `json:"displayProperties"`
	ItemTypeDisplayName string            `json:"itemTypeDisplayName"`
	Redacted            bool              `json:"redacted"`
}

type milestoneRow struct {
	DisplayProperties displayProperties `json:"displayProperties"`
	MilestoneType     int               `json:"milestoneType"`
}

// OpenDatabase opens the dataset at path if one is installed there.
func OpenDatabase(path string) (*Database, error) {
	d := &Database{path: path}
	if err := d.Reload(); err != nil {
		return nil, err
	}

	return d, nil
}

// Reload reopens the dataset, picking up a newly installed version. Cached definitions are
// dropped.
func (d *Database) Reload() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closeLocked()
	d.items = &sync.Map{}
	d.milestones = &sync.Map{}

	if _, err := os.Stat(d.path); os.IsNotExist(err) {
		glg.Debugf("No world content installed at %s", d.path)
		return nil
	}

	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro&_pragma=busy_timeout(5000)", d.path))
	if err != nil {
		glg.Errorf("Failed to open world content: %s", err.Error())
		raven.CaptureError(err, nil)
		return err
	}

	itemStmt, err := db.Prepare(itemDefinitionQuery)
	if err != nil {
		glg.Errorf("Failed to prepare item definition query: %s", err.Error())
		raven.CaptureError(err, nil)
		db.Close()
		return err
	}

	milestoneStmt, err := db.Prepare(milestoneDefinitionQuery)
	if err != nil {
		glg.Errorf("Failed to prepare milestone definition query: %s", err.Error())
		raven.CaptureError(err, nil)
		itemStmt.Close()
		db.Close()
		return err
	}

	d.db, d.ItemStmt, d.MilestoneStmt = db, itemStmt, milestoneStmt
	glg.Infof("Opened world content at %s", d.path)

	return nil
}

// definitionID is the row id of a hash, the tables key on the hash as a signed 32 bit value.
func definitionID(hash uint) int64 {
	return int64(int32(uint32(hash)))
}

func (d *Database) lookup(ctx context.Context, stmt *sql.Stmt, hash uint, v interface{}) (bool, error) {
	var raw string
	err := stmt.QueryRowContext(ctx, definitionID(hash)).Scan(&raw)
	if err == sql.ErrNoRows {
		glg.Warnf("No definition found for hash: %d", hash)
		return false, nil
	} else if err != nil {
		return false, err
	}

	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, fmt.Errorf("invalid definition for hash %d: %w", hash, err)
	}

	return true, nil
}

// ItemDefinition returns the definition of an inventory item, nil when it is unknown.
func (d *Database) ItemDefinition(ctx context.Context, hash uint) (*models.ItemDefinition, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.db == nil {
		return nil, nil
	}
	if def, ok := d.items.Load(hash); ok {
		return def.(*models.ItemDefinition), nil
	}

	row := itemRow{}
	found, err := d.lookup(ctx, d.ItemStmt, hash, &row)
	if err != nil || !found {
		return nil, err
	}

	def := &models.ItemDefinition{
		Hash:                hash,
		Name:                row.DisplayProperties.Name,
		Description:         row.DisplayProperties.Description,
		ItemTypeDisplayName: row.ItemTypeDisplayName,
		Redacted:            row.Redacted,
	}
	d.items.Store(hash, def)

	return def, nil
}

// MilestoneDefinition returns the definition of a milestone, nil when it is unknown.
func (d *Database) MilestoneDefinition(ctx context.Context, hash uint) (*models.MilestoneDefinition, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.db == nil {
		return nil, nil
	}
	if def, ok := d.milestones.Load(hash); ok {
		return def.(*models.MilestoneDefinition), nil
	}

	row := milestoneRow{}
	found, err := d.lookup(ctx, d.MilestoneStmt, hash, &row)
	if err != nil || !found {
		return nil, err
	}

	def := &models.MilestoneDefinition{
		Hash:          hash,
		Name:          row.DisplayProperties.Name,
		Description:   row.DisplayProperties.Description,
		MilestoneType: models.MilestoneType(row.MilestoneType),
	}
	d.milestones.Store(hash, def)

	return def, nil
}

func (d *Database) closeLocked() error {
	if d.db == nil {
		return nil
	}

	d.ItemStmt.Close()
	d.MilestoneStmt.Close()
	err := d.db.Close()
	d.db, d.ItemStmt, d.MilestoneStmt = nil, nil, nil

	return err
}

// Close releases the connection.
func (d *Database) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.closeLocked()
}
