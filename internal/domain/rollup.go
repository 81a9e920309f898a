package domain

import (
	"github.com/yungbote/rollup-backend/internal/denorm"
)

// RollupRegistry declares every tracked aggregate column in the schema. It
// is built once at startup and handed to the denorm plugin; the declarative
// filters drive recompute scans while the callbacks drive incremental
// decisions, and both must agree on eligibility.
func RollupRegistry() *denorm.Registry {
	reg := denorm.NewRegistry()

	reg.MustRegister(&Member{},
		&denorm.Tracker{
			Parent:    &Group{},
			Field:     "members_count",
			Aggregate: denorm.Count(),
			Relation:  "group_id",
			Filter:    denorm.Filter{Cond: "active = ?", Args: []any{true}},
			Suitable:  func(s denorm.State) bool { return s.Bool("active") },
		},
		&denorm.Tracker{
			Parent:    &Group{},
			Field:     "points_sum",
			Aggregate: denorm.Sum("points"),
			Relation:  "group_id",
		},
	)

	reg.MustRegister(&Post{},
		&denorm.Tracker{
			Parent:    &Group{},
			Field:     "posts_count",
			Aggregate: denorm.Count(),
			Relation:  "group_id",
			Filter:    denorm.Filter{Cond: "visible = ?", Args: []any{true}},
			Suitable:  func(s denorm.State) bool { return s.Bool("visible") },
		},
		&denorm.Tracker{
			Parent:    &Member{},
			Field:     "posts_count",
			Aggregate: denorm.Count(),
			Relation:  "author_id",
			Filter:    denorm.Filter{Cond: "visible = ?", Args: []any{true}},
			Suitable:  func(s denorm.State) bool { return s.Bool("visible") },
		},
	)

	return reg
}
