package tracker

import (
	"strconv"
	"time"

	"github.com/sprintforge/sprintforge/internal/model"
)

// Wire DTOs for the tracker REST API. Field coverage follows what the
// aggregation service consumes; unknown fields are ignored.

type boardPage struct {
	Values []boardDTO `json:"values"`
}

type boardDTO struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Location struct {
		ProjectKey  string `json:"projectKey"`
		ProjectName string `json:"projectName"`
	} `json:"location"`
}

func (b boardDTO) toModel() model.BoardInfo {
	return model.BoardInfo{
		ID:          strconv.FormatInt(b.ID, 10),
		Name:        b.Name,
		ProjectKey:  b.Location.ProjectKey,
		ProjectName: b.Location.ProjectName,
		Type:        b.Type,
	}
}

type sprintPage struct {
	Values []sprintDTO `json:"values"`
	IsLast bool        `json:"isLast"`
}

type sprintDTO struct {
	ID            int64      `json:"id"`
	Name          string     `json:"name"`
	State         string     `json:"state"`
	StartDate     *time.Time `json:"startDate"`
	EndDate       *time.Time `json:"endDate"`
	CompleteDate  *time.Time `json:"completeDate"`
	Goal          string     `json:"goal"`
	OriginBoardID int64      `json:"originBoardId"`
}

func (s sprintDTO) toModel() model.Sprint {
	return model.Sprint{
		ID:           strconv.FormatInt(s.ID, 10),
		Name:         s.Name,
		State:        s.State,
		StartDate:    s.StartDate,
		EndDate:      s.EndDate,
		CompleteDate: s.CompleteDate,
		Goal:         s.Goal,
		BoardID:      strconv.FormatInt(s.OriginBoardID, 10),
	}
}

type issuePage struct {
	Issues     []issueDTO `json:"issues"`
	Total      int        `json:"total"`
	MaxResults int        `json:"maxResults"`
	StartAt    int        `json:"startAt"`
}

type issueDTO struct {
	Key    string `json:"key"`
	ID     string `json:"id"`
	Fields struct {
		Summary   string `json:"summary"`
		Status    named  `json:"status"`
		IssueType named  `json:"issuetype"`
		Priority  named  `json:"priority"`
		Assignee  *user  `json:"assignee"`
		Reporter  *user  `json:"reporter"`
		// Story points live in a configurable custom field; the default
		// cloud field id is used here.
		StoryPoints    *float64   `json:"customfield_10016"`
		Created        time.Time  `json:"created"`
		Updated        time.Time  `json:"updated"`
		ResolutionDate *time.Time `json:"resolutiondate"`
		Sprint         *sprintRef `json:"sprint"`
		Labels         []string   `json:"labels"`
		Components     []named    `json:"components"`
		EpicLink       string     `json:"customfield_10014"`
		Parent         *struct {
			Key string `json:"key"`
		} `json:"parent"`
		IssueLinks []issueLink `json:"issuelinks"`
	} `json:"fields"`
	Changelog *changelogDTO `json:"changelog"`
}

type named struct {
	Name string `json:"name"`
}

type user struct {
	DisplayName string `json:"displayName"`
}

type sprintRef struct {
	ID int64 `json:"id"`
}

type issueLink struct {
	Type struct {
		Name string `json:"name"`
	} `json:"type"`
	InwardIssue *struct {
		Key string `json:"key"`
	} `json:"inwardIssue"`
}

type changelogDTO struct {
	Histories []struct {
		Created time.Time `json:"created"`
		Items   []struct {
			Field      string `json:"field"`
			FromString string `json:"fromString"`
			ToString   string `json:"toString"`
		} `json:"items"`
	} `json:"histories"`
}

// blockingLinkType marks an inward dependency link.
const blockingLinkType = "Blocks"

func (i issueDTO) toModel() model.Issue {
	issue := model.Issue{
		Key:       model.NormalizeIssueKey(i.Key),
		ID:        i.ID,
		Summary:   i.Fields.Summary,
		Status:    i.Fields.Status.Name,
		IssueType: i.Fields.IssueType.Name,
		Priority:  i.Fields.Priority.Name,
		Created:   i.Fields.Created,
		Updated:   i.Fields.Updated,
		Resolved:  i.Fields.ResolutionDate,
		Labels:    i.Fields.Labels,
		EpicLink:  i.Fields.EpicLink,
	}

	if i.Fields.Assignee != nil {
		issue.Assignee = i.Fields.Assignee.DisplayName
	}

	if i.Fields.Reporter != nil {
		issue.Reporter = i.Fields.Reporter.DisplayName
	}

	if i.Fields.StoryPoints != nil {
		issue.StoryPoints = *i.Fields.StoryPoints
	}

	if i.Fields.Sprint != nil {
		issue.SprintID = strconv.FormatInt(i.Fields.Sprint.ID, 10)
	}

	if i.Fields.Parent != nil {
		issue.ParentKey = model.NormalizeIssueKey(i.Fields.Parent.Key)
	}

	for _, component := range i.Fields.Components {
		issue.Components = append(issue.Components, component.Name)
	}

	for _, link := range i.Fields.IssueLinks {
		if link.Type.Name == blockingLinkType && link.InwardIssue != nil {
			issue.BlockedBy = append(issue.BlockedBy, model.NormalizeIssueKey(link.InwardIssue.Key))
		}
	}

	if i.Changelog != nil {
		for _, history := range i.Changelog.Histories {
			for _, item := range history.Items {
				if item.Field != "status" {
					continue
				}

				issue.Changelog = append(issue.Changelog, model.Transition{
					From: item.FromString,
					To:   item.ToString,
					At:   history.Created,
				})
			}
		}
	}

	return issue
}
