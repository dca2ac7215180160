package events

import (
	"strings"

	"github.com/iancoleman/strcase"
)

// Key is the canonical event type name, e.g. "project_star".
type Key string

// Event type keys.
const (
	ProjectCreate   Key = "project_create"
	ProjectUpdate   Key = "project_update"
	ProjectStar     Key = "project_star"
	ProjectFork     Key = "project_fork"
	ProjectComment  Key = "project_comment"
	CommentReply    Key = "comment_reply"
	UserFollow      Key = "user_follow"
	CollaboratorAdd Key = "collaborator_add"
	ContentReport   Key = "content_report"
	UserRegister    Key = "user_register"
	UserLogin       Key = "user_login"
)

// Normalize returns the canonical key for raw. "ProjectStar",
// "project-star" and "PROJECT_STAR" all normalize to "project_star".
func Normalize(raw string) Key {
	raw = strings.TrimSpace(raw)
	if raw == strings.ToUpper(raw) {
		raw = strings.ToLower(raw)
	}
	return Key(strings.ToLower(strcase.ToSnake(raw)))
}
