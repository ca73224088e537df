package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/prospect-cli/internal/db"
	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/source"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool, used by tests.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying database pool for subsystems that need direct
// query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS companies (
	id                TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	client_id         TEXT NOT NULL,
	name              TEXT NOT NULL,
	domain            TEXT NOT NULL DEFAULT '',
	external_ids      JSONB NOT NULL DEFAULT '{}',
	industry          TEXT NOT NULL DEFAULT '',
	employee_count    INTEGER,
	revenue_usd       DOUBLE PRECISION,
	funding_total_usd DOUBLE PRECISION,
	funding_stage     TEXT NOT NULL DEFAULT '',
	last_funding_at   TIMESTAMPTZ,
	country           TEXT NOT NULL DEFAULT '',
	city              TEXT NOT NULL DEFAULT '',
	tech_stack        JSONB NOT NULL DEFAULT '[]',
	description       TEXT NOT NULL DEFAULT '',
	sources           JSONB NOT NULL DEFAULT '[]',
	primary_source    TEXT NOT NULL DEFAULT '',
	stage             TEXT NOT NULL DEFAULT 'tam',
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_companies_client_domain
	ON companies (client_id, lower(domain)) WHERE domain <> '';
CREATE INDEX IF NOT EXISTS idx_companies_client_stage ON companies(client_id, stage);

CREATE TABLE IF NOT EXISTS contacts (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	company_id     TEXT NOT NULL REFERENCES companies(id),
	full_name      TEXT NOT NULL,
	title          TEXT NOT NULL DEFAULT '',
	seniority      TEXT NOT NULL DEFAULT '',
	department     TEXT NOT NULL DEFAULT '',
	email          TEXT NOT NULL DEFAULT '',
	email_verified BOOLEAN NOT NULL DEFAULT FALSE,
	linkedin_url   TEXT NOT NULL DEFAULT '',
	source         TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_contacts_company_email
	ON contacts (company_id, lower(email)) WHERE email <> '';
CREATE INDEX IF NOT EXISTS idx_contacts_company ON contacts(company_id);

CREATE TABLE IF NOT EXISTS target_profiles (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	client_id  TEXT NOT NULL,
	name       TEXT NOT NULL,
	filters    JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS persona_filters (
	id        TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	client_id TEXT NOT NULL,
	name      TEXT NOT NULL,
	filters   JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS funnels (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	client_id  TEXT NOT NULL,
	profile_id TEXT NOT NULL REFERENCES target_profiles(id),
	name       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS funnel_members (
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	funnel_id       TEXT NOT NULL REFERENCES funnels(id),
	company_id      TEXT NOT NULL REFERENCES companies(id),
	contact_id      TEXT REFERENCES contacts(id),
	fit_score       NUMERIC(6,4) NOT NULL DEFAULT 0,
	signal_score    NUMERIC(6,4) NOT NULL DEFAULT 0,
	composite_score NUMERIC(6,4) NOT NULL DEFAULT 0,
	persona_score   NUMERIC(6,4) NOT NULL DEFAULT 0,
	reasons         JSONB NOT NULL DEFAULT '[]',
	added_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	removed_at      TIMESTAMPTZ
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_funnel_members_active
	ON funnel_members (funnel_id, company_id) WHERE removed_at IS NULL AND contact_id IS NULL;
CREATE UNIQUE INDEX IF NOT EXISTS uq_funnel_members_active_contact
	ON funnel_members (funnel_id, contact_id) WHERE removed_at IS NULL AND contact_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_funnel_members_funnel ON funnel_members(funnel_id);

CREATE TABLE IF NOT EXISTS signals (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	company_id  TEXT NOT NULL REFERENCES companies(id),
	type        TEXT NOT NULL,
	strength    NUMERIC(6,4) NOT NULL,
	evidence    TEXT NOT NULL,
	source      TEXT NOT NULL DEFAULT '',
	detected_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_signals_company ON signals(company_id);
CREATE INDEX IF NOT EXISTS idx_signals_expires ON signals(expires_at);

CREATE TABLE IF NOT EXISTS source_metrics (
	id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	source           TEXT NOT NULL,
	op               TEXT NOT NULL,
	latency_ms       BIGINT NOT NULL DEFAULT 0,
	fields_populated INTEGER NOT NULL DEFAULT 0,
	cost_usd         DOUBLE PRECISION NOT NULL DEFAULT 0,
	success          BOOLEAN NOT NULL DEFAULT FALSE,
	rate_limited     BOOLEAN NOT NULL DEFAULT FALSE,
	recorded_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_source_metrics_source ON source_metrics(source, recorded_at);

CREATE TABLE IF NOT EXISTS jobs (
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	client_id       TEXT NOT NULL,
	type            TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'queued',
	input           JSONB,
	output          JSONB,
	error           TEXT NOT NULL DEFAULT '',
	processed_items INTEGER NOT NULL DEFAULT 0,
	total_items     INTEGER NOT NULL DEFAULT 0,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status, created_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

const companyColumns = `id, client_id, name, domain, external_ids, industry,
	employee_count, revenue_usd, funding_total_usd, funding_stage,
	last_funding_at, country, city, tech_stack, description, sources,
	primary_source, stage, created_at, updated_at`

func (s *PostgresStore) UpsertCompany(ctx context.Context, company *model.Company) (bool, error) {
	company.Domain = model.NormalizeDomain(company.Domain)
	if company.Stage == "" {
		company.Stage = model.StageTAM
	}

	if company.Domain == "" {
		// No dedup key; always a fresh row.
		if err := s.insertCompany(ctx, company); err != nil {
			return false, err
		}
		return true, nil
	}

	existing, err := s.GetCompanyByDomain(ctx, company.ClientID, company.Domain)
	if err != nil {
		return false, err
	}
	if existing == nil {
		err := s.insertCompany(ctx, company)
		if err == nil {
			return true, nil
		}
		// A concurrent writer may have inserted the same domain between
		// the lookup and the insert; fall through to the merge path.
		existing, lookupErr := s.GetCompanyByDomain(ctx, company.ClientID, company.Domain)
		if lookupErr != nil || existing == nil {
			return false, err
		}
		return false, s.mergeInto(ctx, existing, company)
	}
	return false, s.mergeInto(ctx, existing, company)
}

// mergeInto applies fill-gaps merge of incoming onto existing, unions the
// provenance lists, persists, and writes the canonical row back to incoming.
// Re-discovery follows the same rule as the enrichment waterfall: a field the
// stored row already has keeps its value no matter how fresh the incoming
// one is, so merge results do not depend on source arrival order.
func (s *PostgresStore) mergeInto(ctx context.Context, existing, incoming *model.Company) error {
	source.FillGaps(existing, incoming)
	for _, rec := range incoming.Sources {
		if !existing.HasSource(rec.Source) {
			existing.RecordSource(rec)
		}
	}
	if existing.PrimarySource == "" {
		existing.PrimarySource = incoming.PrimarySource
	}
	if err := s.UpdateCompany(ctx, existing); err != nil {
		return err
	}
	*incoming = *existing
	return nil
}

func (s *PostgresStore) insertCompany(ctx context.Context, c *model.Company) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	externalIDs, techStack, sources, err := companyJSON(c)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO companies (id, client_id, name, domain, external_ids,
			industry, employee_count, revenue_usd, funding_total_usd,
			funding_stage, last_funding_at, country, city, tech_stack,
			description, sources, primary_source, stage, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
		c.ID, c.ClientID, c.Name, c.Domain, externalIDs, c.Industry,
		c.EmployeeCount, c.RevenueUSD, c.FundingTotalUSD, c.FundingStage,
		c.LastFundingAt, c.Country, c.City, techStack, c.Description,
		sources, c.PrimarySource, string(c.Stage), c.CreatedAt, c.UpdatedAt,
	)
	return eris.Wrap(err, "postgres: insert company")
}

func (s *PostgresStore) UpdateCompany(ctx context.Context, c *model.Company) error {
	c.UpdatedAt = time.Now().UTC()

	externalIDs, techStack, sources, err := companyJSON(c)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE companies SET name = $1, domain = $2, external_ids = $3,
			industry = $4, employee_count = $5, revenue_usd = $6,
			funding_total_usd = $7, funding_stage = $8, last_funding_at = $9,
			country = $10, city = $11, tech_stack = $12, description = $13,
			sources = $14, primary_source = $15, stage = $16, updated_at = $17
		WHERE id = $18`,
		c.Name, c.Domain, externalIDs, c.Industry, c.EmployeeCount,
		c.RevenueUSD, c.FundingTotalUSD, c.FundingStage, c.LastFundingAt,
		c.Country, c.City, techStack, c.Description, sources,
		c.PrimarySource, string(c.Stage), c.UpdatedAt, c.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update company %s", c.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("company not found: %s", c.ID)
	}
	return nil
}

func (s *PostgresStore) GetCompany(ctx context.Context, id string) (*model.Company, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+companyColumns+` FROM companies WHERE id = $1`, id)
	c, err := scanCompany(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("company not found: %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get company %s", id)
	}
	return c, nil
}

func (s *PostgresStore) GetCompanyByDomain(ctx context.Context, clientID, domain string) (*model.Company, error) {
	domain = model.NormalizeDomain(domain)
	if domain == "" {
		return nil, nil
	}
	row := s.pool.QueryRow(ctx,
		`SELECT `+companyColumns+` FROM companies WHERE client_id = $1 AND lower(domain) = $2`,
		clientID, domain)
	c, err := scanCompany(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get company by domain %s", domain)
	}
	return c, nil
}

func (s *PostgresStore) ListCompanies(ctx context.Context, filter CompanyFilter) ([]model.Company, error) {
	query := `SELECT ` + companyColumns + ` FROM companies WHERE client_id = $1`
	args := []any{filter.ClientID}
	if filter.Stage != "" {
		args = append(args, string(filter.Stage))
		query += ` AND stage = $2`
	}
	query += ` ORDER BY created_at`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list companies")
	}
	defer rows.Close()

	var out []model.Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan company")
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list companies rows")
}

func (s *PostgresStore) AdvanceCompanyStage(ctx context.Context, id string, from, to model.PipelineStage) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE companies SET stage = $1, updated_at = $2 WHERE id = $3 AND stage = $4`,
		string(to), time.Now().UTC(), id, string(from))
	if err != nil {
		return eris.Wrapf(err, "postgres: advance company stage %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("company %s not at stage %s", id, from)
	}
	return nil
}

func (s *PostgresStore) UpsertContact(ctx context.Context, contact *model.Contact) error {
	if contact.ID == "" {
		contact.ID = uuid.New().String()
	}
	if contact.CreatedAt.IsZero() {
		contact.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO contacts (id, company_id, full_name, title, seniority,
			department, email, email_verified, linkedin_url, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (company_id, lower(email)) WHERE email <> '' DO UPDATE SET
			full_name = EXCLUDED.full_name,
			title = CASE WHEN contacts.title = '' THEN EXCLUDED.title ELSE contacts.title END,
			seniority = CASE WHEN contacts.seniority = '' THEN EXCLUDED.seniority ELSE contacts.seniority END,
			department = CASE WHEN contacts.department = '' THEN EXCLUDED.department ELSE contacts.department END,
			email_verified = contacts.email_verified OR EXCLUDED.email_verified,
			linkedin_url = CASE WHEN contacts.linkedin_url = '' THEN EXCLUDED.linkedin_url ELSE contacts.linkedin_url END`,
		contact.ID, contact.CompanyID, contact.FullName, contact.Title,
		contact.Seniority, contact.Department, contact.Email,
		contact.EmailVerified, contact.LinkedInURL, contact.Source,
		contact.CreatedAt,
	)
	return eris.Wrap(err, "postgres: upsert contact")
}

func (s *PostgresStore) ListContactsByCompany(ctx context.Context, companyID string) ([]model.Contact, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, company_id, full_name, title, seniority, department,
			email, email_verified, linkedin_url, source, created_at
		FROM contacts WHERE company_id = $1 ORDER BY created_at`,
		companyID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list contacts")
	}
	defer rows.Close()

	var out []model.Contact
	for rows.Next() {
		var c model.Contact
		if err := rows.Scan(&c.ID, &c.CompanyID, &c.FullName, &c.Title,
			&c.Seniority, &c.Department, &c.Email, &c.EmailVerified,
			&c.LinkedInURL, &c.Source, &c.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan contact")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list contacts rows")
}

func (s *PostgresStore) CreateProfile(ctx context.Context, profile *model.TargetProfile) error {
	if profile.ID == "" {
		profile.ID = uuid.New().String()
	}
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = time.Now().UTC()
	}
	filters, err := json.Marshal(profile)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal profile")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO target_profiles (id, client_id, name, filters, created_at) VALUES ($1, $2, $3, $4, $5)`,
		profile.ID, profile.ClientID, profile.Name, filters, profile.CreatedAt)
	return eris.Wrap(err, "postgres: insert profile")
}

func (s *PostgresStore) GetProfile(ctx context.Context, id string) (*model.TargetProfile, error) {
	var filters []byte
	var clientID, name string
	var createdAt time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT client_id, name, filters, created_at FROM target_profiles WHERE id = $1`, id).
		Scan(&clientID, &name, &filters, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("profile not found: %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get profile %s", id)
	}

	var profile model.TargetProfile
	if err := json.Unmarshal(filters, &profile); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal profile")
	}
	profile.ID = id
	profile.ClientID = clientID
	profile.Name = name
	profile.CreatedAt = createdAt
	return &profile, nil
}

func (s *PostgresStore) CreatePersona(ctx context.Context, persona *model.PersonaFilter) error {
	if persona.ID == "" {
		persona.ID = uuid.New().String()
	}
	filters, err := json.Marshal(persona)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal persona")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO persona_filters (id, client_id, name, filters) VALUES ($1, $2, $3, $4)`,
		persona.ID, persona.ClientID, persona.Name, filters)
	return eris.Wrap(err, "postgres: insert persona")
}

func (s *PostgresStore) GetPersona(ctx context.Context, id string) (*model.PersonaFilter, error) {
	var filters []byte
	var clientID, name string
	err := s.pool.QueryRow(ctx,
		`SELECT client_id, name, filters FROM persona_filters WHERE id = $1`, id).
		Scan(&clientID, &name, &filters)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("persona not found: %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get persona %s", id)
	}

	var persona model.PersonaFilter
	if err := json.Unmarshal(filters, &persona); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal persona")
	}
	persona.ID = id
	persona.ClientID = clientID
	persona.Name = name
	return &persona, nil
}

func (s *PostgresStore) CreateFunnel(ctx context.Context, funnel *model.Funnel) error {
	if funnel.ID == "" {
		funnel.ID = uuid.New().String()
	}
	if funnel.CreatedAt.IsZero() {
		funnel.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO funnels (id, client_id, profile_id, name, created_at) VALUES ($1, $2, $3, $4, $5)`,
		funnel.ID, funnel.ClientID, funnel.ProfileID, funnel.Name, funnel.CreatedAt)
	return eris.Wrap(err, "postgres: insert funnel")
}

func (s *PostgresStore) GetFunnel(ctx context.Context, id string) (*model.Funnel, error) {
	var f model.Funnel
	err := s.pool.QueryRow(ctx,
		`SELECT id, client_id, profile_id, name, created_at FROM funnels WHERE id = $1`, id).
		Scan(&f.ID, &f.ClientID, &f.ProfileID, &f.Name, &f.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("funnel not found: %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get funnel %s", id)
	}
	return &f, nil
}

func (s *PostgresStore) AddFunnelMember(ctx context.Context, member *model.FunnelMember) (bool, error) {
	if member.ID == "" {
		member.ID = uuid.New().String()
	}
	if member.AddedAt.IsZero() {
		member.AddedAt = time.Now().UTC()
	}
	reasons, err := json.Marshal(member.Reasons)
	if err != nil {
		return false, eris.Wrap(err, "postgres: marshal reasons")
	}

	// Target the active-uniqueness index for the member's entity kind.
	conflict := `ON CONFLICT (funnel_id, company_id) WHERE removed_at IS NULL AND contact_id IS NULL DO NOTHING`
	if member.ContactID != nil {
		conflict = `ON CONFLICT (funnel_id, contact_id) WHERE removed_at IS NULL AND contact_id IS NOT NULL DO NOTHING`
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO funnel_members (id, funnel_id, company_id, contact_id,
			fit_score, signal_score, composite_score, persona_score,
			reasons, added_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) `+conflict,
		member.ID, member.FunnelID, member.CompanyID, member.ContactID,
		member.FitScore.String(), member.SignalScore.String(),
		member.CompositeScore.String(), member.PersonaScore.String(),
		reasons, member.AddedAt,
	)
	if err != nil {
		return false, eris.Wrap(err, "postgres: insert funnel member")
	}
	return tag.RowsAffected() > 0, nil
}

const memberColumns = `id, funnel_id, company_id, contact_id,
	fit_score::text, signal_score::text, composite_score::text,
	persona_score::text, reasons, added_at, removed_at`

func (s *PostgresStore) ListActiveMembers(ctx context.Context, funnelID string) ([]model.FunnelMember, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+memberColumns+` FROM funnel_members
		WHERE funnel_id = $1 AND removed_at IS NULL
		ORDER BY composite_score DESC, added_at`,
		funnelID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list active members")
	}
	defer rows.Close()
	return collectMembers(rows)
}

func (s *PostgresStore) ListActiveMembersAtStage(ctx context.Context, funnelID string, stage model.PipelineStage) ([]model.FunnelMember, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT m.id, m.funnel_id, m.company_id, m.contact_id,
			m.fit_score::text, m.signal_score::text, m.composite_score::text,
			m.persona_score::text, m.reasons, m.added_at, m.removed_at
		FROM funnel_members m
		JOIN companies c ON c.id = m.company_id
		WHERE m.funnel_id = $1 AND m.removed_at IS NULL AND c.stage = $2
		ORDER BY m.composite_score DESC, m.added_at`,
		funnelID, string(stage))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list members at stage")
	}
	defer rows.Close()
	return collectMembers(rows)
}

func (s *PostgresStore) UpdateMemberScores(ctx context.Context, memberID string, scores MemberScores) error {
	reasons, err := json.Marshal(scores.Reasons)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal reasons")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE funnel_members SET fit_score = $1, signal_score = $2,
			composite_score = $3, persona_score = $4, reasons = $5
		WHERE id = $6 AND removed_at IS NULL`,
		model.ScoreDecimal(scores.Fit).String(),
		model.ScoreDecimal(scores.Signal).String(),
		model.ScoreDecimal(scores.Composite).String(),
		model.ScoreDecimal(scores.Persona).String(),
		reasons, memberID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update member scores %s", memberID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("active member not found: %s", memberID)
	}
	return nil
}

func (s *PostgresStore) RemoveActiveMembers(ctx context.Context, funnelID string) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE funnel_members SET removed_at = $1 WHERE funnel_id = $2 AND removed_at IS NULL`,
		time.Now().UTC(), funnelID)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: remove active members")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) CountActiveMembers(ctx context.Context, funnelID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM funnel_members WHERE funnel_id = $1 AND removed_at IS NULL`,
		funnelID).Scan(&n)
	return n, eris.Wrap(err, "postgres: count active members")
}

// InsertSignals appends a detection batch via COPY. Signals are append-only:
// rows are never updated, staleness is handled at read time.
func (s *PostgresStore) InsertSignals(ctx context.Context, signals []model.Signal) error {
	rows := make([][]any, 0, len(signals))
	for i := range signals {
		sig := &signals[i]
		if sig.ID == "" {
			sig.ID = uuid.New().String()
		}
		rows = append(rows, []any{
			sig.ID, sig.CompanyID, string(sig.Type), sig.Strength.String(),
			sig.Evidence, sig.Source, sig.DetectedAt, sig.ExpiresAt,
		})
	}
	_, err := db.CopyFrom(ctx, s.pool, "signals",
		[]string{"id", "company_id", "type", "strength", "evidence", "source", "detected_at", "expires_at"},
		rows)
	if err != nil {
		return eris.Wrap(err, "postgres: insert signals")
	}
	return nil
}

func (s *PostgresStore) GetSignalsForCompanies(ctx context.Context, companyIDs []string, now time.Time) (map[string][]model.Signal, error) {
	out := make(map[string][]model.Signal)
	if len(companyIDs) == 0 {
		return out, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, company_id, type, strength::text, evidence, source, detected_at, expires_at
		FROM signals WHERE company_id = ANY($1) AND expires_at > $2
		ORDER BY detected_at`,
		companyIDs, now)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get signals")
	}
	defer rows.Close()

	for rows.Next() {
		var sig model.Signal
		var typ, strength string
		if err := rows.Scan(&sig.ID, &sig.CompanyID, &typ, &strength,
			&sig.Evidence, &sig.Source, &sig.DetectedAt, &sig.ExpiresAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan signal")
		}
		sig.Type = model.SignalType(typ)
		sig.Strength, err = decimal.NewFromString(strength)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: parse signal strength")
		}
		out[sig.CompanyID] = append(out[sig.CompanyID], sig)
	}
	return out, eris.Wrap(rows.Err(), "postgres: get signals rows")
}

func (s *PostgresStore) InsertSourceMetric(ctx context.Context, m source.CallMetrics, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO source_metrics (id, source, op, latency_ms, fields_populated, cost_usd, success, rate_limited, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		uuid.New().String(), m.Source, string(m.Op), m.LatencyMS,
		m.FieldsPopulated, m.CostUSD, m.Success, m.RateLimited, at,
	)
	return eris.Wrap(err, "postgres: insert source metric")
}

func (s *PostgresStore) SummarizeSourceMetrics(ctx context.Context, since time.Time) ([]SourceMetricsSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT source, op, count(*),
			count(*) FILTER (WHERE success),
			count(*) FILTER (WHERE rate_limited),
			coalesce(avg(latency_ms), 0),
			coalesce(sum(fields_populated), 0),
			coalesce(sum(cost_usd), 0)
		FROM source_metrics WHERE recorded_at >= $1
		GROUP BY source, op ORDER BY source, op`,
		since)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: summarize source metrics")
	}
	defer rows.Close()

	var out []SourceMetricsSummary
	for rows.Next() {
		var r SourceMetricsSummary
		if err := rows.Scan(&r.Source, &r.Op, &r.Calls, &r.Successes,
			&r.RateLimited, &r.AvgLatencyMS, &r.FieldsPopulated, &r.TotalCostUSD); err != nil {
			return nil, eris.Wrap(err, "postgres: scan source metric summary")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: summarize rows")
}

func (s *PostgresStore) CreateJob(ctx context.Context, job *model.Job) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	job.Status = model.JobStatusQueued
	job.CreatedAt = now
	job.UpdatedAt = now

	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, client_id, type, status, input, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		job.ID, job.ClientID, string(job.Type), string(job.Status),
		[]byte(job.Input), job.CreatedAt, job.UpdatedAt,
	)
	return eris.Wrap(err, "postgres: insert job")
}

const jobColumns = `id, client_id, type, status, input, output, error,
	processed_items, total_items, created_at, updated_at`

func (s *PostgresStore) GetJob(ctx context.Context, id string) (*model.Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	j, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("job not found: %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get job %s", id)
	}
	return j, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE 1=1`
	var args []any
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		query += ` AND type = $` + strconv.Itoa(len(args))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` AND status = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list jobs")
	}
	defer rows.Close()

	var out []model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan job")
		}
		out = append(out, *j)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list jobs rows")
}

// ClaimNextJob atomically moves the oldest queued job to running and returns
// it. Returns nil when the queue is empty. FOR UPDATE SKIP LOCKED keeps
// concurrent workers from claiming the same row.
func (s *PostgresStore) ClaimNextJob(ctx context.Context) (*model.Job, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE jobs SET status = 'running', updated_at = now()
		WHERE id = (
			SELECT id FROM jobs WHERE status = 'queued'
			ORDER BY created_at LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobColumns)
	j, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: claim next job")
	}
	return j, nil
}

func (s *PostgresStore) UpdateJobProgress(ctx context.Context, id string, processed, total int) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE jobs SET processed_items = $1, total_items = $2, updated_at = $3 WHERE id = $4`,
		processed, total, time.Now().UTC(), id)
	return eris.Wrapf(err, "postgres: update job progress %s", id)
}

func (s *PostgresStore) CompleteJob(ctx context.Context, id string, output []byte) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = 'complete', output = $1, updated_at = $2 WHERE id = $3`,
		output, time.Now().UTC(), id)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete job %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("job not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) FailJob(ctx context.Context, id string, errText string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = 'failed', error = $1, updated_at = $2 WHERE id = $3`,
		errText, time.Now().UTC(), id)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail job %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("job not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) CancelJob(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = 'cancelled', updated_at = $1
		WHERE id = $2 AND status IN ('queued', 'running')`,
		time.Now().UTC(), id)
	if err != nil {
		return eris.Wrapf(err, "postgres: cancel job %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("job not cancellable: %s", id)
	}
	return nil
}

func (s *PostgresStore) IsJobCancelled(ctx context.Context, id string) (bool, error) {
	var status string
	err := s.pool.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1`, id).Scan(&status)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: job status %s", id)
	}
	return model.JobStatus(status) == model.JobStatusCancelled, nil
}

func companyJSON(c *model.Company) (externalIDs, techStack, sources []byte, err error) {
	ids := c.ExternalIDs
	if ids == nil {
		ids = map[string]string{}
	}
	externalIDs, err = json.Marshal(ids)
	if err != nil {
		return nil, nil, nil, eris.Wrap(err, "postgres: marshal external ids")
	}
	stack := c.TechStack
	if stack == nil {
		stack = []string{}
	}
	techStack, err = json.Marshal(stack)
	if err != nil {
		return nil, nil, nil, eris.Wrap(err, "postgres: marshal tech stack")
	}
	recs := c.Sources
	if recs == nil {
		recs = []model.SourceRecord{}
	}
	sources, err = json.Marshal(recs)
	if err != nil {
		return nil, nil, nil, eris.Wrap(err, "postgres: marshal sources")
	}
	return externalIDs, techStack, sources, nil
}

func scanCompany(row pgx.Row) (*model.Company, error) {
	var c model.Company
	var externalIDs, techStack, sources []byte
	var stage string
	err := row.Scan(&c.ID, &c.ClientID, &c.Name, &c.Domain, &externalIDs,
		&c.Industry, &c.EmployeeCount, &c.RevenueUSD, &c.FundingTotalUSD,
		&c.FundingStage, &c.LastFundingAt, &c.Country, &c.City, &techStack,
		&c.Description, &sources, &c.PrimarySource, &stage,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.Stage = model.PipelineStage(stage)
	if err := json.Unmarshal(externalIDs, &c.ExternalIDs); err != nil {
		return nil, eris.Wrap(err, "unmarshal external ids")
	}
	if err := json.Unmarshal(techStack, &c.TechStack); err != nil {
		return nil, eris.Wrap(err, "unmarshal tech stack")
	}
	if err := json.Unmarshal(sources, &c.Sources); err != nil {
		return nil, eris.Wrap(err, "unmarshal sources")
	}
	if len(c.ExternalIDs) == 0 {
		c.ExternalIDs = nil
	}
	if len(c.TechStack) == 0 {
		c.TechStack = nil
	}
	if len(c.Sources) == 0 {
		c.Sources = nil
	}
	return &c, nil
}

func collectMembers(rows pgx.Rows) ([]model.FunnelMember, error) {
	var out []model.FunnelMember
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan member")
		}
		out = append(out, *m)
	}
	return out, eris.Wrap(rows.Err(), "postgres: member rows")
}

func scanMember(row pgx.Row) (*model.FunnelMember, error) {
	var m model.FunnelMember
	var fit, sig, comp, persona string
	var reasons []byte
	err := row.Scan(&m.ID, &m.FunnelID, &m.CompanyID, &m.ContactID,
		&fit, &sig, &comp, &persona, &reasons, &m.AddedAt, &m.RemovedAt)
	if err != nil {
		return nil, err
	}
	if m.FitScore, err = decimal.NewFromString(fit); err != nil {
		return nil, eris.Wrap(err, "parse fit score")
	}
	if m.SignalScore, err = decimal.NewFromString(sig); err != nil {
		return nil, eris.Wrap(err, "parse signal score")
	}
	if m.CompositeScore, err = decimal.NewFromString(comp); err != nil {
		return nil, eris.Wrap(err, "parse composite score")
	}
	if m.PersonaScore, err = decimal.NewFromString(persona); err != nil {
		return nil, eris.Wrap(err, "parse persona score")
	}
	if err := json.Unmarshal(reasons, &m.Reasons); err != nil {
		return nil, eris.Wrap(err, "unmarshal reasons")
	}
	if len(m.Reasons) == 0 {
		m.Reasons = nil
	}
	return &m, nil
}

func scanJob(row pgx.Row) (*model.Job, error) {
	var j model.Job
	var typ, status string
	var input, output []byte
	err := row.Scan(&j.ID, &j.ClientID, &typ, &status, &input, &output,
		&j.Error, &j.ProcessedItems, &j.TotalItems, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	j.Type = model.JobType(typ)
	j.Status = model.JobStatus(status)
	j.Input = input
	j.Output = output
	return &j, nil
}
