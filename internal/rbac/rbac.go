package rbac

type Role string
type Action string

const (
	RoleGuest      Role = "guest"
	RoleUser       Role = "user"
	RoleTranslator Role = "translator"
	RoleReviewer   Role = "reviewer"
	RoleAdmin      Role = "admin"
)

const (
	ActionTranslate        Action = "translate"
	ActionSuggest          Action = "suggest"
	ActionAcceptSuggestion Action = "suggestion.accept"
	ActionDeleteSuggestion Action = "suggestion.delete"
	ActionVote             Action = "suggestion.vote"
	ActionComment          Action = "comment"
	ActionDeleteComment    Action = "comment.delete"
	ActionReview           Action = "review"
	ActionAddUnit          Action = "unit.add"
	ActionAutoTranslate    Action = "translation.auto"
)

// Actor is the authenticated identity behind a request. An empty Name means
// the request carries no account; such actors may still leave suggestions.
type Actor struct {
	Name string
	Role Role
}

func (a Actor) Authenticated() bool {
	return a.Name != ""
}

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleReviewer:
		return action != ActionAutoTranslate
	case RoleTranslator:
		switch action {
		case ActionTranslate, ActionSuggest, ActionAcceptSuggestion, ActionVote, ActionComment, ActionAddUnit:
			return true
		}
		return false
	case RoleUser:
		return action == ActionSuggest || action == ActionVote || action == ActionComment
	case RoleGuest:
		return action == ActionSuggest
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleGuest, RoleUser, RoleTranslator, RoleReviewer, RoleAdmin:
		return Role(role)
	default:
		return RoleGuest
	}
}

func CanTranslate(actor Actor) bool {
	return Can(actor.Role, ActionTranslate)
}

func CanSuggest(actor Actor) bool {
	return Can(actor.Role, ActionSuggest)
}

func CanAcceptSuggestion(actor Actor) bool {
	return Can(actor.Role, ActionAcceptSuggestion)
}

// CanDeleteSuggestion lets authors withdraw their own suggestions; anything
// else needs the delete permission.
func CanDeleteSuggestion(actor Actor, suggestionAuthor string) bool {
	if actor.Authenticated() && actor.Name == suggestionAuthor {
		return true
	}
	return Can(actor.Role, ActionDeleteSuggestion)
}

func CanVoteSuggestion(actor Actor) bool {
	return actor.Authenticated() && Can(actor.Role, ActionVote)
}

func CanAddComment(actor Actor) bool {
	return actor.Authenticated() && Can(actor.Role, ActionComment)
}

func CanDeleteComment(actor Actor, commentAuthor string) bool {
	if actor.Authenticated() && actor.Name == commentAuthor {
		return true
	}
	return Can(actor.Role, ActionDeleteComment)
}

func CanReview(actor Actor) bool {
	return Can(actor.Role, ActionReview)
}

func CanAddUnit(actor Actor) bool {
	return Can(actor.Role, ActionAddUnit)
}

func CanAutoTranslate(actor Actor) bool {
	return Can(actor.Role, ActionAutoTranslate)
}
