package api

import (
	"github.com/google/go-github/v57/github"

	"issuedeck/internal/models"
)

// ConvertRepository converts a GitHub repository to our model
func ConvertRepository(repo *github.Repository) *models.Repository {
	return &models.Repository{
		ID:        repo.GetID(),
		FullName:  repo.GetFullName(),
		Owner:     repo.GetOwner().GetLogin(),
		OwnerType: repo.GetOwner().GetType(),
		Private:   repo.GetPrivate(),
		HTMLURL:   repo.GetHTMLURL(),
		UpdatedAt: repo.GetUpdatedAt().Time,
	}
}

// ConvertIssue converts a GitHub issue to our model. Callers must have
// filtered out pull-request-marked items first (issue.IsPullRequest()).
func ConvertIssue(issue *github.Issue) *models.Issue {
	return &models.Issue{
		Number:    issue.GetNumber(),
		Title:     issue.GetTitle(),
		Body:      issue.GetBody(),
		State:     issue.GetState(),
		Author:    issue.GetUser().GetLogin(),
		Assignees: convertAssignees(issue.Assignees),
		Comments:  issue.GetComments(),
		Reactions: convertReactionSummary(issue.GetReactions()),
		HTMLURL:   issue.GetHTMLURL(),
		CreatedAt: issue.GetCreatedAt().Time,
		UpdatedAt: issue.GetUpdatedAt().Time,
	}
}

// ConvertPullRequest converts a GitHub pull request to our model
func ConvertPullRequest(pull *github.PullRequest) *models.PullRequest {
	return &models.PullRequest{
		Number:    pull.GetNumber(),
		Title:     pull.GetTitle(),
		Body:      pull.GetBody(),
		State:     pull.GetState(),
		Draft:     pull.GetDraft(),
		Merged:    pull.GetMerged(),
		Author:    pull.GetUser().GetLogin(),
		Assignees: convertAssignees(pull.Assignees),
		Comments:  pull.GetComments(),
		HTMLURL:   pull.GetHTMLURL(),
		CreatedAt: pull.GetCreatedAt().Time,
		UpdatedAt: pull.GetUpdatedAt().Time,
	}
}

// ConvertComment converts a GitHub issue comment to our model
func ConvertComment(comment *github.IssueComment) *models.Comment {
	return &models.Comment{
		ID:        comment.GetID(),
		Author:    comment.GetUser().GetLogin(),
		Body:      comment.GetBody(),
		HTMLURL:   comment.GetHTMLURL(),
		CreatedAt: comment.GetCreatedAt().Time,
		UpdatedAt: comment.GetUpdatedAt().Time,
	}
}

// ConvertReaction converts a GitHub reaction to our model
func ConvertReaction(reaction *github.Reaction) *models.Reaction {
	return &models.Reaction{
		ID:      reaction.GetID(),
		Content: reaction.GetContent(),
		User:    reaction.GetUser().GetLogin(),
	}
}

func convertAssignees(users []*github.User) []string {
	if len(users) == 0 {
		return nil
	}
	logins := make([]string, 0, len(users))
	for _, u := range users {
		logins = append(logins, u.GetLogin())
	}
	return logins
}

func convertReactionSummary(r *github.Reactions) models.ReactionSummary {
	if r == nil {
		return models.ReactionSummary{}
	}
	return models.ReactionSummary{
		TotalCount: r.GetTotalCount(),
		PlusOne:    r.GetPlusOne(),
		MinusOne:   r.GetMinusOne(),
		Laugh:      r.GetLaugh(),
		Confused:   r.GetConfused(),
		Heart:      r.GetHeart(),
		Hooray:     r.GetHooray(),
		Rocket:     r.GetRocket(),
		Eyes:       r.GetEyes(),
	}
}
