package models

func ModelsToAutoMigrate() []interface{} {
	return []interface{}{
		&User{}, // Must be first - other tables reference it
		&Project{},
		&ProjectCollaborator{},
		&Follow{},
		&Comment{},
		&Event{},
		&EventOutbox{},
		&Notification{},
	}
}

// Target and followable entity kinds.
const (
	KindUser    = "user"
	KindProject = "project"
	KindComment = "comment"
)
