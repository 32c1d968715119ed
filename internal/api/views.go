package api

import (
	"github.com/google/uuid"
	"github.com/lalith-99/disruptionhub/internal/actionhub"
	"github.com/lalith-99/disruptionhub/internal/models"
)

// actionItemView is the wire shape of an Action Item. The alert id is
// stored once and emitted under both names older clients read.
type actionItemView struct {
	*models.ActionItem
	Alert      uuid.UUID             `json:"alert"`
	IsFlagged  bool                  `json:"is_flagged"`
	Engagement *actionhub.Engagement `json:"engagement,omitempty"`
}

func newActionItemView(item *models.ActionItem, eng *actionhub.Engagement) *actionItemView {
	if item == nil {
		return nil
	}
	return &actionItemView{
		ActionItem: item,
		Alert:      item.AlertID,
		IsFlagged:  item.Flagged,
		Engagement: eng,
	}
}

func newActionItemViews(items []models.ActionItem, engs map[uuid.UUID]*actionhub.Engagement) []*actionItemView {
	out := make([]*actionItemView, 0, len(items))
	for i := range items {
		out = append(out, newActionItemView(&items[i], engs[items[i].AlertID]))
	}
	return out
}

// alertStateView answers GET /v1/alerts/:alertId. Item is null when the
// caller has no Action Item for the alert.
type alertStateView struct {
	Item        *actionItemView       `json:"item"`
	IsFollowing bool                  `json:"is_following"`
	IsFlagged   bool                  `json:"is_flagged"`
	Engagement  *actionhub.Engagement `json:"engagement"`
}

func newAlertStateView(st *actionhub.AlertState) alertStateView {
	v := alertStateView{Engagement: st.Engagement}
	if st.Item != nil {
		v.Item = newActionItemView(st.Item, nil)
		v.IsFollowing = st.Item.IsFollowing
		v.IsFlagged = st.Item.Flagged
	}
	return v
}

// toggleView answers a flag or follow toggle. Item is null after an
// unfollow removed it.
type toggleView struct {
	Item        *actionItemView       `json:"item"`
	Deleted     bool                  `json:"deleted"`
	IsFollowing bool                  `json:"is_following"`
	IsFlagged   bool                  `json:"is_flagged"`
	Engagement  *actionhub.Engagement `json:"engagement"`
}

func newToggleView(res *actionhub.ToggleResult) toggleView {
	v := toggleView{
		Deleted:    res.Deleted,
		Engagement: res.Engagement,
	}
	if res.Item != nil {
		v.Item = newActionItemView(res.Item, nil)
		v.IsFollowing = res.Item.IsFollowing
		v.IsFlagged = res.Item.Flagged
	}
	return v
}
