package events

import (
	"github.com/openforge/commons/pkg/audience"
	"github.com/openforge/commons/pkg/models"
	"github.com/openforge/commons/pkg/notifications"
)

var mentionsField = Field{Name: audience.PayloadMentions, Kind: KindList, Elem: KindString, Default: []any{}}

// DefaultEntries returns the built-in event types.
func DefaultEntries() []Entry {
	return []Entry{
		{
			Key:              ProjectCreate,
			Schema:           NewSchema(Required("project_title", KindString)),
			LogToDatabase:    true,
			Public:           true,
			NotifyTargets:    []audience.Name{audience.ActorFollowers},
			NotificationType: notifications.ProjectCreated,
			DataFields:       []string{FieldTargetID, "project_title"},
		},
		{
			Key: ProjectUpdate,
			Schema: NewSchema(
				Required("project_title", KindString),
				Optional("update_summary", KindString, ""),
			),
			LogToDatabase:    true,
			Public:           true,
			NotifyTargets:    []audience.Name{audience.ProjectFollowers, audience.Collaborators},
			NotificationType: notifications.ProjectUpdated,
			DataFields:       []string{FieldTargetID, "project_title", "update_summary"},
		},
		{
			Key:              ProjectStar,
			Schema:           NewSchema(Required("project_title", KindString)),
			LogToDatabase:    true,
			Public:           true,
			NotifyTargets:    []audience.Name{audience.Owner, audience.OwnerFollowers, audience.ProjectFollowers},
			NotificationType: notifications.ProjectStarred,
			DataFields:       []string{FieldTargetID, "project_title"},
		},
		{
			Key: ProjectFork,
			Schema: NewSchema(
				Required("project_title", KindString),
				Required("fork_id", KindNumber),
				Required("fork_title", KindString),
			),
			LogToDatabase:    true,
			Public:           true,
			NotifyTargets:    []audience.Name{audience.Owner, audience.ProjectFollowers},
			NotificationType: notifications.ProjectForked,
			DataFields:       []string{FieldTargetID, "project_title", "fork_id", "fork_title"},
			Related:          &Related{Type: models.KindProject, IDField: "fork_id"},
		},
		{
			Key: ProjectComment,
			Schema: NewSchema(
				Required("project_title", KindString),
				Required("comment_id", KindNumber),
				Required("comment_text", KindString),
				mentionsField,
			),
			LogToDatabase: true,
			Public:        true,
			NotifyTargets: []audience.Name{
				audience.Owner, audience.Collaborators, audience.ThreadParticipants, audience.Mentioned,
			},
			NotificationType: notifications.ProjectCommented,
			DataFields:       []string{FieldTargetID, "project_title", "comment_id", "comment_text"},
			Related:          &Related{Type: models.KindComment, IDField: "comment_id"},
		},
		{
			Key: CommentReply,
			Schema: NewSchema(
				Required("comment_id", KindNumber),
				Required("comment_text", KindString),
				Required("context_type", KindString),
				Required("context_id", KindNumber),
				mentionsField,
			),
			LogToDatabase:    true,
			Public:           true,
			NotifyTargets:    []audience.Name{audience.Owner, audience.ThreadParticipants, audience.Mentioned},
			NotificationType: notifications.CommentReplied,
			DataFields:       []string{"comment_id", "comment_text", "context_type", "context_id"},
			Related:          &Related{Type: models.KindComment, IDField: "comment_id"},
		},
		{
			Key:              UserFollow,
			Schema:           NewSchema(),
			LogToDatabase:    true,
			Public:           true,
			NotifyTargets:    []audience.Name{audience.TargetUser},
			NotificationType: notifications.UserFollowed,
			DataFields:       []string{FieldActorID},
		},
		{
			Key: CollaboratorAdd,
			Schema: NewSchema(
				Required("project_title", KindString),
				Required(audience.PayloadUserID, KindNumber),
				Optional("role", KindString, models.RoleEditor),
			),
			LogToDatabase:    true,
			Public:           false,
			NotifyTargets:    []audience.Name{audience.Invitee},
			NotificationType: notifications.CollaboratorAdded,
			DataFields:       []string{FieldTargetID, "project_title", "role"},
		},
		{
			Key: ContentReport,
			Schema: NewSchema(
				Required("reason", KindString),
				Required("report_url", KindString),
			),
			LogToDatabase:    true,
			Public:           false,
			NotifyTargets:    []audience.Name{audience.Admins},
			NotificationType: notifications.ContentReported,
			DataFields:       []string{FieldTargetType, FieldTargetID, "reason", "report_url"},
		},
		{
			Key:           UserRegister,
			Schema:        NewSchema(),
			LogToDatabase: true,
			Public:        false,
		},
		{
			Key:           UserLogin,
			Schema:        NewSchema(),
			LogToDatabase: false,
			Public:        false,
		},
	}
}

// DefaultRegistry returns the built-in event types checked against the
// built-in notification types. It panics if the two are inconsistent.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(notifications.DefaultTypes(), DefaultEntries()...)
	if err != nil {
		panic("events: invalid default registry: " + err.Error())
	}
	return r
}
