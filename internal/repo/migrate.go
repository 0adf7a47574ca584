package repo

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

func col(name string, t field.Type) *schema.Column {
	return &schema.Column{Name: name, Type: t}
}

func text(name string) *schema.Column {
	return &schema.Column{Name: name, Type: field.TypeString, SchemaType: map[string]string{dialect.Postgres: "text"}}
}

func nullable(c *schema.Column) *schema.Column {
	c.Nullable = true
	return c
}

func withDefault(c *schema.Column, v any) *schema.Column {
	c.Default = v
	return c
}

var (
	patientsTable = func() *schema.Table {
		cols := []*schema.Column{
			col("id", field.TypeUUID),
			col("full_name", field.TypeString),
			withDefault(col("phone", field.TypeString), ""),
			withDefault(col("national_id", field.TypeString), ""),
			nullable(col("national_id_hash", field.TypeString)),
			nullable(col("birth_date", field.TypeTime)),
			withDefault(col("gender", field.TypeString), ""),
			withDefault(col("address", field.TypeString), ""),
			withDefault(text("medical_history"), ""),
			withDefault(text("allergies"), ""),
			col("created_at", field.TypeTime),
			col("updated_at", field.TypeTime),
		}
		return &schema.Table{
			Name:       "patients",
			Columns:    cols,
			PrimaryKey: cols[:1],
			Indexes: []*schema.Index{
				{Name: "patients_national_id_hash", Unique: true, Columns: []*schema.Column{cols[4]}},
				{Name: "patients_full_name", Columns: []*schema.Column{cols[1]}},
			},
		}
	}()

	staffTable = func() *schema.Table {
		cols := []*schema.Column{
			col("id", field.TypeUUID),
			col("full_name", field.TypeString),
			col("username", field.TypeString),
			col("password_hash", field.TypeString),
			{Name: "role", Type: field.TypeEnum, Enums: statusStrings([]StaffRole{RoleAdmin, RoleReception, RoleDoctor, RoleLab, RoleReviewer})},
			withDefault(col("active", field.TypeBool), true),
			col("created_at", field.TypeTime),
		}
		return &schema.Table{
			Name:       "staff",
			Columns:    cols,
			PrimaryKey: cols[:1],
			Indexes: []*schema.Index{
				{Name: "staff_username", Unique: true, Columns: []*schema.Column{cols[2]}},
			},
		}
	}()

	visitsTable = func() *schema.Table {
		cols := []*schema.Column{
			col("id", field.TypeUUID),
			col("patient_id", field.TypeUUID),
			col("doctor_id", field.TypeUUID),
			col("visit_date", field.TypeTime),
			col("vitals", field.TypeJSON),
			withDefault(text("symptoms"), ""),
			{Name: "status", Type: field.TypeEnum, Enums: statusStrings(VisitStatuses)},
			{Name: "payment_status", Type: field.TypeEnum, Enums: []string{string(PaymentUnpaid), string(PaymentPaid)}},
			withDefault(col("fee", field.TypeInt64), 0),
			withDefault(col("queue_number", field.TypeInt), 0),
			nullable(col("diagnosis_id", field.TypeUUID)),
			col("created_by", field.TypeUUID),
			col("created_at", field.TypeTime),
			col("updated_at", field.TypeTime),
		}
		return &schema.Table{
			Name:       "visits",
			Columns:    cols,
			PrimaryKey: cols[:1],
			Indexes: []*schema.Index{
				// At most one waiting visit per patient. Later statuses are
				// never checked so hold and lab completion always apply.
				{
					Name:       "visits_one_waiting_per_patient",
					Unique:     true,
					Columns:    []*schema.Column{cols[1]},
					Annotation: &entsql.IndexAnnotation{Where: waitingVisitPredicate()},
				},
				{Name: "visits_patient_id_status", Columns: []*schema.Column{cols[1], cols[6]}},
				{Name: "visits_doctor_id_created_at", Columns: []*schema.Column{cols[2], cols[12]}},
				{Name: "visits_status", Columns: []*schema.Column{cols[6]}},
			},
		}
	}()

	labRequestsTable = func() *schema.Table {
		cols := []*schema.Column{
			col("id", field.TypeUUID),
			col("visit_id", field.TypeUUID),
			col("patient_id", field.TypeUUID),
			col("doctor_id", field.TypeUUID),
			col("test_name", field.TypeString),
			withDefault(col("price", field.TypeInt64), 0),
			{Name: "status", Type: field.TypeEnum, Enums: statusStrings(LabRequestStatuses)},
			withDefault(text("technician_notes"), ""),
			col("results", field.TypeJSON),
			col("result_files", field.TypeJSON),
			col("created_at", field.TypeTime),
			col("updated_at", field.TypeTime),
			nullable(col("completed_at", field.TypeTime)),
		}
		return &schema.Table{
			Name:       "lab_requests",
			Columns:    cols,
			PrimaryKey: cols[:1],
			Indexes: []*schema.Index{
				{Name: "lab_requests_visit_id", Columns: []*schema.Column{cols[1]}},
				{Name: "lab_requests_status_created_at", Columns: []*schema.Column{cols[6], cols[10]}},
			},
		}
	}()

	paymentsTable = func() *schema.Table {
		cols := []*schema.Column{
			col("id", field.TypeUUID),
			nullable(col("patient_id", field.TypeUUID)),
			col("cashier_id", field.TypeUUID),
			col("amount", field.TypeInt64),
			{Name: "payment_type", Type: field.TypeEnum, Enums: []string{string(PaymentVisitFee), string(PaymentLabTest), string(PaymentOther)}},
			col("reference_id", field.TypeUUID),
			withDefault(col("description", field.TypeString), ""),
			col("created_at", field.TypeTime),
		}
		return &schema.Table{
			Name:       "payments",
			Columns:    cols,
			PrimaryKey: cols[:1],
			Indexes: []*schema.Index{
				{Name: "payments_created_at", Columns: []*schema.Column{cols[7]}},
				{Name: "payments_reference_id", Columns: []*schema.Column{cols[5]}},
			},
		}
	}()

	diagnosesTable = func() *schema.Table {
		cols := []*schema.Column{
			col("id", field.TypeUUID),
			col("visit_id", field.TypeUUID),
			withDefault(text("final_diagnosis"), ""),
			nullable(col("ai_analysis", field.TypeJSON)),
			withDefault(col("confidence_score", field.TypeFloat64), 0),
			col("created_at", field.TypeTime),
			col("updated_at", field.TypeTime),
		}
		return &schema.Table{
			Name:       "diagnoses",
			Columns:    cols,
			PrimaryKey: cols[:1],
			Indexes: []*schema.Index{
				{Name: "diagnoses_visit_id", Unique: true, Columns: []*schema.Column{cols[1]}},
			},
		}
	}()

	prescriptionsTable = func() *schema.Table {
		cols := []*schema.Column{
			col("id", field.TypeUUID),
			col("visit_id", field.TypeUUID),
			col("patient_id", field.TypeUUID),
			col("doctor_id", field.TypeUUID),
			col("medications", field.TypeJSON),
			withDefault(text("diagnosis"), ""),
			withDefault(text("notes"), ""),
			col("images", field.TypeJSON),
			col("created_at", field.TypeTime),
		}
		return &schema.Table{
			Name:       "prescriptions",
			Columns:    cols,
			PrimaryKey: cols[:1],
			Indexes: []*schema.Index{
				{Name: "prescriptions_patient_id", Columns: []*schema.Column{cols[2]}},
			},
		}
	}()

	templatesTable = func() *schema.Table {
		cols := []*schema.Column{
			col("id", field.TypeUUID),
			col("doctor_id", field.TypeUUID),
			col("name", field.TypeString),
			withDefault(text("diagnosis"), ""),
			col("medications", field.TypeJSON),
			withDefault(text("notes"), ""),
			col("created_at", field.TypeTime),
			col("updated_at", field.TypeTime),
		}
		return &schema.Table{
			Name:       "prescription_templates",
			Columns:    cols,
			PrimaryKey: cols[:1],
			Indexes: []*schema.Index{
				{Name: "prescription_templates_doctor_id", Columns: []*schema.Column{cols[1]}},
			},
		}
	}()
)

func init() {
	fk := func(name string, from *schema.Table, c int, to *schema.Table, onDelete schema.ReferenceOption) *schema.ForeignKey {
		return &schema.ForeignKey{
			Symbol:     name,
			Columns:    []*schema.Column{from.Columns[c]},
			RefColumns: []*schema.Column{to.Columns[0]},
			RefTable:   to,
			OnDelete:   onDelete,
		}
	}
	visitsTable.ForeignKeys = []*schema.ForeignKey{
		fk("visits_patient", visitsTable, 1, patientsTable, schema.Restrict),
		fk("visits_doctor", visitsTable, 2, staffTable, schema.Restrict),
	}
	labRequestsTable.ForeignKeys = []*schema.ForeignKey{
		fk("lab_requests_visit", labRequestsTable, 1, visitsTable, schema.Cascade),
	}
	paymentsTable.ForeignKeys = []*schema.ForeignKey{
		fk("payments_patient", paymentsTable, 1, patientsTable, schema.SetNull),
	}
	diagnosesTable.ForeignKeys = []*schema.ForeignKey{
		fk("diagnoses_visit", diagnosesTable, 1, visitsTable, schema.Cascade),
	}
	prescriptionsTable.ForeignKeys = []*schema.ForeignKey{
		fk("prescriptions_visit", prescriptionsTable, 1, visitsTable, schema.Cascade),
	}
	templatesTable.ForeignKeys = []*schema.ForeignKey{
		fk("prescription_templates_doctor", templatesTable, 1, staffTable, schema.Cascade),
	}
}

// Tables lists the clinic schema in dependency order.
var Tables = []*schema.Table{
	patientsTable,
	staffTable,
	visitsTable,
	labRequestsTable,
	paymentsTable,
	diagnosesTable,
	prescriptionsTable,
	templatesTable,
}

func waitingVisitPredicate() string {
	return "status = '" + string(VisitWaiting) + "'"
}

// Migrate creates or alters the clinic tables.
func Migrate(ctx context.Context, drv dialect.Driver, opts ...schema.MigrateOption) error {
	m, err := schema.NewMigrate(drv, opts...)
	if err != nil {
		return fmt.Errorf("repo: migrate: %w", err)
	}
	if err := m.Create(ctx, Tables...); err != nil {
		return fmt.Errorf("repo: migrate: %w", err)
	}
	return nil
}
