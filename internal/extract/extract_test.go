package extract

import (
	"reflect"
	"strings"
	"testing"

	"pgknex/internal/classify"
	"pgknex/internal/schema"
)

const dump = `
CREATE TABLE public.users (
    id integer NOT NULL,
    email character varying(255) NOT NULL,
    name text,
    balance numeric(10,2) DEFAULT 0,
    created_at timestamp with time zone DEFAULT now() NOT NULL
);

CREATE SEQUENCE public.users_id_seq START WITH 1 INCREMENT BY 1 NO MINVALUE NO MAXVALUE CACHE 1;

ALTER TABLE ONLY public.users ALTER COLUMN id SET DEFAULT nextval('public.users_id_seq'::regclass);

CREATE TABLE public.jobs (
    id integer NOT NULL,
    user_id integer NOT NULL,
    status character varying(20) DEFAULT 'pending'::character varying NOT NULL,
    payload jsonb,
    CONSTRAINT jobs_status_check CHECK (((status)::text = ANY ((ARRAY['pending'::character varying, 'running'::character varying, 'completed'::character varying])::text[])))
);

ALTER TABLE ONLY public.users ADD CONSTRAINT users_pkey PRIMARY KEY (id);
ALTER TABLE ONLY public.jobs ADD CONSTRAINT jobs_pkey PRIMARY KEY (id);
ALTER TABLE ONLY public.users ADD CONSTRAINT users_email_key UNIQUE (email);
ALTER TABLE ONLY public.jobs ADD CONSTRAINT jobs_user_id_fkey FOREIGN KEY (user_id) REFERENCES public.users(id) ON DELETE CASCADE;

CREATE INDEX jobs_status_idx ON public.jobs USING btree (status);
CREATE UNIQUE INDEX jobs_payload_key ON public.jobs USING btree (user_id, status);

COMMENT ON COLUMN public.users.email IS 'login address';

CREATE VIEW public.running_jobs AS SELECT id FROM public.jobs WHERE status = 'running';

CREATE TABLE public.adonis_schema (
    id integer NOT NULL,
    name character varying(255)
);
`

func parseDump(t *testing.T, src string) (*schema.Model, []error) {
	t.Helper()
	m, warns, err := Parse(src, Options{Exclude: map[string]bool{"adonis_schema": true}})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return m, warns
}

func TestParseDump(t *testing.T) {
	m, warns := parseDump(t, dump)
	if len(warns) != 0 {
		t.Fatalf("warnings: %v", warns)
	}
	if errs := m.Link(classify.Enum); len(errs) != 0 {
		t.Fatalf("Link errors: %v", errs)
	}

	if len(m.Tables) != 2 {
		t.Fatalf("len(Tables) = %d, want 2 (view and excluded table must not count)", len(m.Tables))
	}

	users, ok := m.Table("users")
	if !ok {
		t.Fatal("users table missing")
	}
	if len(users.Columns) != 5 {
		t.Errorf("users has %d columns, want 5", len(users.Columns))
	}
	if !reflect.DeepEqual(users.PK, []string{"id"}) {
		t.Errorf("users.PK = %v, want [id]", users.PK)
	}
	id, _ := users.Column("id")
	if !strings.Contains(id.Default, "nextval") {
		t.Errorf("id.Default = %q, want nextval expression", id.Default)
	}
	email, _ := users.Column("email")
	if email.Type != "character varying" || !reflect.DeepEqual(email.Params, []int{255}) {
		t.Errorf("email = %s%v, want character varying[255]", email.Type, email.Params)
	}
	if email.Comment != "login address" {
		t.Errorf("email.Comment = %q, want login address", email.Comment)
	}
	balance, _ := users.Column("balance")
	if balance.Type != "numeric" || !reflect.DeepEqual(balance.Params, []int{10, 2}) {
		t.Errorf("balance = %s%v, want numeric[10 2]", balance.Type, balance.Params)
	}
	created, _ := users.Column("created_at")
	if created.Type != "timestamp with time zone" {
		t.Errorf("created_at.Type = %q, want timestamp with time zone", created.Type)
	}

	jobs, _ := m.Table("jobs")
	status, _ := jobs.Column("status")
	if !reflect.DeepEqual(status.Enum, []string{"pending", "running", "completed"}) {
		t.Errorf("status.Enum = %v, want [pending running completed]", status.Enum)
	}

	if len(m.ForeignKeys) != 1 {
		t.Fatalf("len(ForeignKeys) = %d, want 1", len(m.ForeignKeys))
	}
	fk := m.ForeignKeys[0]
	if fk.Name != "jobs_user_id_fkey" || fk.RefTable != "users" || fk.OnDelete != schema.FKCascade {
		t.Errorf("fk = %+v, want jobs_user_id_fkey -> users ON DELETE CASCADE", fk)
	}

	if len(m.Uniques) != 1 || m.Uniques[0].Name != "users_email_key" {
		t.Errorf("Uniques = %+v, want [users_email_key]", m.Uniques)
	}
	if len(m.Indexes) != 2 {
		t.Fatalf("len(Indexes) = %d, want 2", len(m.Indexes))
	}
	if m.Indexes[0].Unique || !m.Indexes[1].Unique {
		t.Errorf("index uniqueness flags wrong: %+v", m.Indexes)
	}

	if len(m.Checks) != 1 || m.Checks[0].Class != schema.CheckEnum {
		t.Errorf("Checks = %+v, want one enum-classified check", m.Checks)
	}
	if len(m.Dropped) != 0 {
		t.Errorf("Dropped = %v, want none", m.Dropped)
	}
}

func TestParseDefaultActionForeignKey(t *testing.T) {
	src := `
CREATE TABLE a (id integer PRIMARY KEY);
CREATE TABLE b (id integer PRIMARY KEY, a_id integer REFERENCES a(id));
`
	m, warns := parseDump(t, src)
	if len(warns) != 0 {
		t.Fatalf("warnings: %v", warns)
	}
	if len(m.ForeignKeys) != 1 {
		t.Fatalf("len(ForeignKeys) = %d, want 1", len(m.ForeignKeys))
	}
	if got := m.ForeignKeys[0].OnDelete; got != schema.FKNoAction {
		t.Errorf("OnDelete = %q, want %q", got, schema.FKNoAction)
	}
}

func TestParseClampsSetDefaultAction(t *testing.T) {
	src := `
CREATE TABLE a (id integer PRIMARY KEY);
CREATE TABLE b (id integer PRIMARY KEY, a_id integer DEFAULT 0);
ALTER TABLE ONLY b ADD CONSTRAINT b_a_id_fkey FOREIGN KEY (a_id) REFERENCES a(id) ON DELETE SET DEFAULT;
`
	m, warns := parseDump(t, src)
	if len(warns) != 0 {
		t.Fatalf("warnings: %v", warns)
	}
	if len(m.ForeignKeys) != 1 {
		t.Fatalf("len(ForeignKeys) = %d, want 1", len(m.ForeignKeys))
	}
	if got := m.ForeignKeys[0].OnDelete; got != schema.FKNoAction {
		t.Errorf("OnDelete = %q, want %q (outside the carried action set)", got, schema.FKNoAction)
	}
}

func TestParseAbortsUnrecognizedTable(t *testing.T) {
	src := `
CREATE TABLE a (id integer);
CREATE TABLE b (LIKE a);
`
	m, warns := parseDump(t, src)
	if len(warns) != 1 {
		t.Fatalf("len(warns) = %d, want 1: %v", len(warns), warns)
	}
	if len(m.Tables) != 1 {
		t.Errorf("len(Tables) = %d, want 1 (aborted table must leave nothing)", len(m.Tables))
	}
	if len(m.Dropped) != 1 {
		t.Errorf("len(Dropped) = %d, want 1", len(m.Dropped))
	}
}

func TestParseSkipsPartitionedTable(t *testing.T) {
	src := `
CREATE TABLE events (id integer, day date) PARTITION BY RANGE (day);
CREATE TABLE plain (id integer);
`
	m, warns := parseDump(t, src)
	if len(warns) != 0 {
		t.Fatalf("warnings: %v", warns)
	}
	if len(m.Tables) != 1 || m.Tables[0].Name != "plain" {
		t.Errorf("Tables = %+v, want only plain", m.Tables)
	}
	if len(m.Dropped) != 0 {
		t.Errorf("Dropped = %v, want none (partitioned tables skip silently)", m.Dropped)
	}
}

func TestParseUnknownStatementWarns(t *testing.T) {
	src := `CREATE TABLE a (id integer); VACUUM;`
	_, warns := parseDump(t, src)
	if len(warns) != 1 {
		t.Fatalf("len(warns) = %d, want 1: %v", len(warns), warns)
	}
}

func TestLinkDropsExternalForeignKey(t *testing.T) {
	src := `
CREATE TABLE a (id integer PRIMARY KEY, other_id integer);
ALTER TABLE ONLY a ADD CONSTRAINT a_other_fkey FOREIGN KEY (other_id) REFERENCES elsewhere(id);
`
	m, warns := parseDump(t, src)
	if len(warns) != 0 {
		t.Fatalf("warnings: %v", warns)
	}
	errs := m.Link(classify.Enum)
	if len(errs) != 1 {
		t.Fatalf("len(Link errs) = %d, want 1: %v", len(errs), errs)
	}
	if len(m.ForeignKeys) != 0 {
		t.Error("external foreign key survived linking")
	}
	if len(m.Dropped) != 1 {
		t.Errorf("len(Dropped) = %d, want 1", len(m.Dropped))
	}
}

func TestParseIdentityColumn(t *testing.T) {
	src := `CREATE TABLE a (id bigint GENERATED ALWAYS AS IDENTITY PRIMARY KEY, name text);`
	m, warns := parseDump(t, src)
	if len(warns) != 0 {
		t.Fatalf("warnings: %v", warns)
	}
	a, _ := m.Table("a")
	id, _ := a.Column("id")
	if id.Type != "bigserial" {
		t.Errorf("id.Type = %q, want bigserial", id.Type)
	}
	if !reflect.DeepEqual(a.PK, []string{"id"}) {
		t.Errorf("PK = %v, want [id]", a.PK)
	}
}

func TestSerialKeyWithEnumCheck(t *testing.T) {
	src := `
CREATE TABLE jobs (id serial primary key, status text);
ALTER TABLE jobs ADD CONSTRAINT jobs_status_check CHECK (status = ANY (ARRAY['pending','running','completed']));
`
	m, warns := parseDump(t, src)
	if len(warns) != 0 {
		t.Fatalf("warnings: %v", warns)
	}
	if errs := m.Link(classify.Enum); len(errs) != 0 {
		t.Fatalf("Link errors: %v", errs)
	}

	jobs, ok := m.Table("jobs")
	if !ok {
		t.Fatal("jobs table missing")
	}
	id, _ := jobs.Column("id")
	if id.Type != "serial" {
		t.Errorf("id.Type = %q, want serial", id.Type)
	}
	status, _ := jobs.Column("status")
	if !reflect.DeepEqual(status.Enum, []string{"pending", "running", "completed"}) {
		t.Errorf("status.Enum = %v, want [pending running completed]", status.Enum)
	}

	enums, opaques := 0, 0
	for _, cc := range m.Checks {
		switch cc.Class {
		case schema.CheckEnum:
			enums++
		case schema.CheckOpaque:
			opaques++
		}
	}
	if enums != 1 || opaques != 0 {
		t.Errorf("enums = %d opaques = %d, want 1 and 0", enums, opaques)
	}
}

func TestCountStatements(t *testing.T) {
	n, err := CountStatements("CREATE TABLE a (id integer); CREATE TABLE b (id integer);")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("CountStatements = %d, want 2", n)
	}
}
