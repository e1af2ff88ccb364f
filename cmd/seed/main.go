package main

import (
	"context"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/careops/clinic-scheduling/internal/availability"
	"github.com/careops/clinic-scheduling/internal/catalog"
	"github.com/careops/clinic-scheduling/internal/db"
	"github.com/careops/clinic-scheduling/internal/ledger"
	"github.com/careops/clinic-scheduling/internal/procedure"
)

// seed loads a demo clinic: the resource taxonomy, a building of rooms and
// equipment, staff with roles, consumable stock, weekly availability and a
// couple of procedures ready to generate slots against.
func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "seed").Logger()
	logger.Info().Msg("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		logger.Fatal().Msg("POSTGRES_DSN is required")
	}

	connCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := db.ConnectPostgres(connCtx, dsn)
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())
	ctx := context.Background()

	types, err := seedTaxonomy(ctx, pool)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed taxonomy")
	}

	catalogRepo := catalog.NewPgRepository(pool)
	catalogSvc := catalog.NewService(catalogRepo, 5, logger)

	resources, err := seedResources(ctx, catalogSvc, types, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed resources")
	}

	engine := availability.NewEngine(
		availability.NewPgRepository(pool), catalogRepo, ledger.NewPgRepository(pool), logger,
	)
	if err := seedAvailability(ctx, engine, resources); err != nil {
		logger.Fatal().Err(err).Msg("seed availability")
	}

	procedureSvc := procedure.NewService(procedure.NewPgRepository(pool), catalogRepo, logger)
	if err := seedProcedures(ctx, procedureSvc, types); err != nil {
		logger.Fatal().Err(err).Msg("seed procedures")
	}

	logger.Info().Msg("seed complete")
}

// taxonomy holds the ids the rest of the seed hangs off.
type taxonomy struct {
	placeType      uuid.UUID
	equipmentType  uuid.UUID
	staffType      uuid.UUID
	consumableType uuid.UUID

	examRoomRole    uuid.UUID
	ultrasoundRole  uuid.UUID
	sonographerRole uuid.UUID
	nurseRole       uuid.UUID
	contrastRole    uuid.UUID
}

func seedTaxonomy(ctx context.Context, pool *pgxpool.Pool) (*taxonomy, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	t := &taxonomy{
		placeType:       uuid.New(),
		equipmentType:   uuid.New(),
		staffType:       uuid.New(),
		consumableType:  uuid.New(),
		examRoomRole:    uuid.New(),
		ultrasoundRole:  uuid.New(),
		sonographerRole: uuid.New(),
		nurseRole:       uuid.New(),
		contrastRole:    uuid.New(),
	}

	typeRows := []struct {
		id   uuid.UUID
		code string
		name string
	}{
		{t.placeType, catalog.TypePlace, "Place"},
		{t.equipmentType, catalog.TypeEquipment, "Equipment"},
		{t.staffType, catalog.TypeStaff, "Staff"},
		{t.consumableType, catalog.TypeConsumable, "Consumable"},
	}
	for _, row := range typeRows {
		_, err := tx.Exec(ctx, `
			INSERT INTO resource_types (id, code, name, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
			ON CONFLICT (code) DO NOTHING
		`, row.id, row.code, row.name)
		if err != nil {
			return nil, err
		}
	}

	roleRows := []struct {
		id     uuid.UUID
		typeID uuid.UUID
		code   string
		name   string
	}{
		{t.examRoomRole, t.placeType, "exam-room", "Exam Room"},
		{t.ultrasoundRole, t.equipmentType, "ultrasound-machine", "Ultrasound Machine"},
		{t.sonographerRole, t.staffType, "sonographer", "Sonographer"},
		{t.nurseRole, t.staffType, "nurse", "Nurse"},
		{t.contrastRole, t.consumableType, "contrast-agent", "Contrast Agent"},
	}
	for _, row := range roleRows {
		_, err := tx.Exec(ctx, `
			INSERT INTO resource_roles (id, type_id, code, name, created_at, updated_at)
			VALUES ($1, $2, $3, $4, now(), now())
			ON CONFLICT (code) DO NOTHING
		`, row.id, row.typeID, row.code, row.name)
		if err != nil {
			return nil, err
		}
	}

	return t, tx.Commit(ctx)
}

type seeded struct {
	rooms       []uuid.UUID
	machines    []uuid.UUID
	staff       []uuid.UUID
	consumables []uuid.UUID
}

func seedResources(ctx context.Context, svc *catalog.Service, t *taxonomy, logger zerolog.Logger) (*seeded, error) {
	building := &catalog.Resource{
		TypeID: t.placeType,
		Name:   "Main Clinic",
		Mode:   catalog.ModeShared,
		// waiting area style capacity, rooms carry the real limits
		MaxConcurrent: 50,
	}
	if err := svc.CreateResource(ctx, building); err != nil {
		return nil, err
	}

	out := &seeded{}

	for i := 0; i < 4; i++ {
		room := &catalog.Resource{
			TypeID:    t.placeType,
			ParentID:  &building.ID,
			Name:      gofakeit.Color() + " Exam Room",
			Mode:      catalog.ModeExclusive,
			SortIndex: i,
			RoleIDs:   []uuid.UUID{t.examRoomRole},
		}
		if err := svc.CreateResource(ctx, room); err != nil {
			return nil, err
		}
		out.rooms = append(out.rooms, room.ID)
	}

	for i := 0; i < 2; i++ {
		machine := &catalog.Resource{
			TypeID:    t.equipmentType,
			ParentID:  &building.ID,
			Name:      "Ultrasound " + gofakeit.CarModel(),
			Mode:      catalog.ModeExclusive,
			SortIndex: i,
			RoleIDs:   []uuid.UUID{t.ultrasoundRole},
		}
		if err := svc.CreateResource(ctx, machine); err != nil {
			return nil, err
		}
		out.machines = append(out.machines, machine.ID)
	}

	staffRoles := [][]uuid.UUID{
		{t.sonographerRole},
		{t.sonographerRole, t.nurseRole},
		{t.nurseRole},
		{t.nurseRole},
	}
	for i, roles := range staffRoles {
		person := &catalog.Resource{
			TypeID:    t.staffType,
			Name:      gofakeit.Name(),
			Mode:      catalog.ModeExclusive,
			SortIndex: i,
			RoleIDs:   roles,
		}
		if err := svc.CreateResource(ctx, person); err != nil {
			return nil, err
		}
		out.staff = append(out.staff, person.ID)
	}

	stock := &catalog.Resource{
		TypeID:       t.consumableType,
		Name:         "Contrast Agent 50ml",
		Mode:         catalog.ModeShared,
		Quantity:     40,
		LowThreshold: 5,
		RoleIDs:      []uuid.UUID{t.contrastRole},
	}
	if err := svc.CreateResource(ctx, stock); err != nil {
		return nil, err
	}
	out.consumables = append(out.consumables, stock.ID)

	logger.Info().
		Int("rooms", len(out.rooms)).
		Int("machines", len(out.machines)).
		Int("staff", len(out.staff)).
		Msg("resources seeded")
	return out, nil
}

// seedAvailability gives every room, machine and staff member a recurring
// weekday 08:00-17:00 window starting next Monday.
func seedAvailability(ctx context.Context, engine *availability.Engine, res *seeded) error {
	start := nextMonday(time.Now().UTC())
	weekdays := []time.Weekday{
		time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday,
	}

	var all []uuid.UUID
	all = append(all, res.rooms...)
	all = append(all, res.machines...)
	all = append(all, res.staff...)

	for _, id := range all {
		a := &availability.Availability{
			ResourceID: id,
			StartTime:  time.Date(start.Year(), start.Month(), start.Day(), 8, 0, 0, 0, time.UTC),
			EndTime:    time.Date(start.Year(), start.Month(), start.Day(), 17, 0, 0, 0, time.UTC),
			Type:       availability.WindowAvailable,
			Recurrence: &availability.Recurrence{
				Frequency:  availability.FreqWeekly,
				Interval:   1,
				DaysOfWeek: weekdays,
			},
		}
		if err := engine.CreateAvailability(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

func seedProcedures(ctx context.Context, svc *procedure.Service, t *taxonomy) error {
	scan := &procedure.Procedure{
		Name:            "Abdominal Ultrasound",
		Type:            procedure.TypeAtomic,
		DurationMinutes: 30,
		Active:          true,
	}
	if err := svc.CreateProcedure(ctx, scan); err != nil {
		return err
	}
	scanReqs := []*procedure.Requirement{
		{ProcedureID: scan.ID, RoleID: t.examRoomRole, QuantityMin: 1, Required: true},
		{ProcedureID: scan.ID, RoleID: t.ultrasoundRole, QuantityMin: 1, Required: true},
		{ProcedureID: scan.ID, RoleID: t.sonographerRole, QuantityMin: 1, Required: true},
		{ProcedureID: scan.ID, RoleID: t.contrastRole, QuantityMin: 1, Required: false},
	}
	for _, req := range scanReqs {
		if err := svc.AddRequirement(ctx, req); err != nil {
			return err
		}
	}

	consult := &procedure.Procedure{
		Name:            "Results Consultation",
		Type:            procedure.TypeAtomic,
		DurationMinutes: 15,
		Active:          true,
	}
	if err := svc.CreateProcedure(ctx, consult); err != nil {
		return err
	}
	consultReqs := []*procedure.Requirement{
		{ProcedureID: consult.ID, RoleID: t.examRoomRole, QuantityMin: 1, Required: true},
		{ProcedureID: consult.ID, RoleID: t.nurseRole, QuantityMin: 1, Required: true},
	}
	for _, req := range consultReqs {
		if err := svc.AddRequirement(ctx, req); err != nil {
			return err
		}
	}

	combo := &procedure.Procedure{
		Name:   "Ultrasound with Consultation",
		Type:   procedure.TypeComposite,
		Active: true,
	}
	if err := svc.CreateProcedure(ctx, combo); err != nil {
		return err
	}
	links := []*procedure.ChildLink{
		{ParentID: combo.ID, ChildID: scan.ID, SequenceOrder: 1, GapAfterMinutes: 10},
		{ParentID: combo.ID, ChildID: consult.ID, SequenceOrder: 2},
	}
	for _, link := range links {
		if err := svc.AddChild(ctx, link); err != nil {
			return err
		}
	}
	return nil
}

func nextMonday(from time.Time) time.Time {
	d := from
	for d.Weekday() != time.Monday {
		d = d.AddDate(0, 0, 1)
	}
	return d
}
