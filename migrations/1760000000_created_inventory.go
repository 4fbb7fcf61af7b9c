package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		events := core.NewBaseCollection("events")
		events.Fields.Add(
			&core.TextField{Name: "name", Required: true},
			&core.NumberField{Name: "capacity", OnlyInt: true},
			&core.SelectField{Name: "status", MaxSelect: 1, Values: []string{"draft", "published", "cancelled"}},
			&core.DateField{Name: "start_at"},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)
		if err := app.Save(events); err != nil {
			return err
		}

		purchases := core.NewBaseCollection("purchases")
		purchases.Fields.Add(
			&core.TextField{Name: "purchase_id", Required: true},
			&core.TextField{Name: "event_id", Required: true},
			&core.TextField{Name: "customer_id", Required: true},
			&core.TextField{Name: "entry_id"},
			&core.TextField{Name: "target_kind", Required: true},
			&core.TextField{Name: "target_id", Required: true},
			&core.NumberField{Name: "quantity", OnlyInt: true},
			&core.NumberField{Name: "units", OnlyInt: true},
			&core.JSONField{Name: "buyer"},
			&core.TextField{Name: "payment_ref", Required: true},
			&core.TextField{Name: "payment_method"},
			&core.TextField{Name: "total_amount"},
			&core.TextField{Name: "referral_code"},
			&core.TextField{Name: "commission"},
			&core.DateField{Name: "purchased_at"},
			&core.AutodateField{Name: "created", OnCreate: true},
		)
		purchases.AddIndex("idx_purchases_purchase_id", true, "purchase_id", "")
		purchases.AddIndex("idx_purchases_customer", false, "customer_id", "")
		if err := app.Save(purchases); err != nil {
			return err
		}

		tickets := core.NewBaseCollection("tickets")
		tickets.Fields.Add(
			&core.TextField{Name: "ticket_id", Required: true},
			&core.TextField{Name: "code", Required: true},
			&core.NumberField{Name: "number", OnlyInt: true},
			&core.TextField{Name: "event_id", Required: true},
			&core.TextField{Name: "purchase_id", Required: true},
			&core.TextField{Name: "customer_id", Required: true},
			&core.TextField{Name: "ticket_type_id"},
			&core.TextField{Name: "table_id"},
			&core.TextField{Name: "bundle_id"},
			&core.TextField{Name: "day_id"},
			&core.TextField{Name: "seat_label"},
			&core.AutodateField{Name: "created", OnCreate: true},
		)
		tickets.AddIndex("idx_tickets_ticket_id", true, "ticket_id", "")
		tickets.AddIndex("idx_tickets_customer", false, "customer_id", "")
		return app.Save(tickets)
	}, func(app core.App) error {
		for _, name := range []string{"tickets", "purchases", "events"} {
			collection, err := app.FindCollectionByNameOrId(name)
			if err != nil {
				return err
			}
			if err := app.Delete(collection); err != nil {
				return err
			}
		}
		return nil
	})
}
