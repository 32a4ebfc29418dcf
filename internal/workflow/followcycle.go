package workflow

import (
	"context"
	"fmt"
	"strconv"

	"github.com/warblehq/warble/internal/guard"
	"github.com/warblehq/warble/internal/state"
)

// stepExecuteFollow performs the follow that the whole cycle is premised on.
// A budget block leaves the workflow parked at this step for a later pass; a
// dedup hit or a failed follow call ends the workflow. Everything after the
// follow itself (profile fetch, liking the pinned tweet) is best-effort.
func (e *Engine) stepExecuteFollow(ctx context.Context, doc *state.Document, wf *state.Workflow) stepResult {
	if err := guard.CheckBudget(guard.ActionFollow, doc, e.limits, e.clock); err != nil {
		return stepResult{summary: fmt.Sprintf("follow of @%s deferred: %v", wf.TargetUsername, err)}
	}
	if err := guard.CheckDedup(guard.ActionFollow, wf.TargetUserID, doc); err != nil {
		wf.Outcome = OutcomeSkippedDuplicate
		return stepResult{summary: fmt.Sprintf("skipping @%s: %v", wf.TargetUsername, err)}
	}

	if err := e.api.Follow(ctx, wf.TargetUserID); err != nil {
		wf.Outcome = OutcomeFollowFailed
		return stepResult{summary: fmt.Sprintf("follow of @%s failed: %v", wf.TargetUsername, err)}
	}
	e.record(guard.ActionFollow, wf.TargetUserID, wf.ID, doc)
	wf.LogAction("followed")

	if profile, err := e.api.GetProfile(ctx, wf.TargetUserID); err != nil {
		e.log.Warn("could not fetch profile after follow", "workflow", wf.ID, "error", err)
	} else {
		if profile.FollowerCount > 0 {
			wf.Context.FollowerCount = strconv.Itoa(profile.FollowerCount)
		}
		wf.Context.PinnedTweetID = profile.PinnedTweetID
	}

	if pinned := wf.Context.PinnedTweetID; pinned != "" &&
		guard.CheckBudget(guard.ActionLike, doc, e.limits, e.clock) == nil &&
		guard.CheckDedup(guard.ActionLike, pinned, doc) == nil {
		if e.attempt(wf, "liked_pinned", "like_pinned_failed", func() error {
			return e.api.Like(ctx, pinned)
		}) {
			e.record(guard.ActionLike, pinned, wf.ID, doc)
		}
	}

	wf.CurrentStep = StepGetReplyContext
	return stepResult{summary: fmt.Sprintf("followed @%s", wf.TargetUsername), proceed: true}
}

// stepGetReplyContext picks a recent post of the target to reply to: the
// first one that is not itself a reply, falling back to the newest post.
// Finding nothing usable is not an error; the cycle moves straight to the
// followback wait rather than blocking on content.
func (e *Engine) stepGetReplyContext(ctx context.Context, doc *state.Document, wf *state.Workflow) stepResult {
	posts, err := e.api.GetRecentPosts(ctx, wf.TargetUserID, 5)
	if err != nil || len(posts) == 0 {
		if err != nil {
			e.log.Warn("could not fetch recent posts", "workflow", wf.ID, "error", err)
		}
		wf.CurrentStep = StepWaiting
		wf.SetCheckAfter(e.clock.Now().Add(followbackWait))
		return stepResult{summary: fmt.Sprintf("no usable post from @%s; skipping reply, will check followback in 7 days", wf.TargetUsername)}
	}

	pick := posts[0]
	for _, p := range posts {
		if !p.IsReply {
			pick = p
			break
		}
	}
	wf.Context.TargetTweetID = pick.ID
	wf.Context.TargetTweetText = pick.Text

	wf.CurrentStep = StepNeedReplyText
	return stepResult{summary: fmt.Sprintf("selected tweet %s from @%s for reply", pick.ID, wf.TargetUsername), proceed: true}
}

// stepNeedReplyText is a pure pause state: it surfaces a task asking the
// agent for reply text and has no side effects.
func (e *Engine) stepNeedReplyText(_ context.Context, _ *state.Document, wf *state.Workflow) stepResult {
	task := &Task{
		WorkflowID: wf.ID,
		Step:       StepNeedReplyText,
		Kind:       "reply_text",
		Instructions: fmt.Sprintf(
			"Write a short, genuine reply to this tweet by @%s: %q. Submit it via submit_response with workflow_id %q.",
			wf.TargetUsername, wf.Context.TargetTweetText, wf.ID),
	}
	return stepResult{summary: fmt.Sprintf("waiting for reply text for @%s", wf.TargetUsername), task: task}
}

// stepPostReply posts the agent-supplied reply. Users who have mentioned the
// operator get a direct reply; everyone else gets a quote, since platforms
// commonly restrict unsolicited direct replies. A failed post is logged and
// the cycle still moves on to the followback wait.
func (e *Engine) stepPostReply(ctx context.Context, doc *state.Document, wf *state.Workflow) stepResult {
	toWaiting := func(summary string) stepResult {
		wf.CurrentStep = StepWaiting
		wf.SetCheckAfter(e.clock.Now().Add(followbackWait))
		return stepResult{summary: summary}
	}

	text := wf.Context.ReplyText
	targetTweet := wf.Context.TargetTweetID
	if text == "" || targetTweet == "" {
		return toWaiting("missing reply text or target tweet; skipping reply")
	}
	if err := guard.CheckBudget(guard.ActionReply, doc, e.limits, e.clock); err != nil {
		return toWaiting(fmt.Sprintf("skipping reply to @%s: %v", wf.TargetUsername, err))
	}

	direct := doc.Mentioned(wf.TargetUserID)
	var postedID string
	var postErr error
	if direct {
		postedID, postErr = e.api.Post(ctx, text, targetTweet, "")
	} else {
		postedID, postErr = e.api.Post(ctx, text, "", targetTweet)
	}
	if postErr != nil {
		wf.LogAction("reply_failed")
		return toWaiting(fmt.Sprintf("reply to @%s failed: %v; will still check followback", wf.TargetUsername, postErr))
	}

	wf.Context.ReplyTweetID = postedID
	if direct {
		e.record(guard.ActionReply, targetTweet, wf.ID, doc)
		wf.LogAction("replied_direct")
		return toWaiting(fmt.Sprintf("replied to @%s (tweet %s)", wf.TargetUsername, postedID))
	}
	e.record(guard.ActionQuote, targetTweet, wf.ID, doc)
	wf.LogAction("replied_as_quote")
	return toWaiting(fmt.Sprintf("quoted @%s (tweet %s)", wf.TargetUsername, postedID))
}

// stepWaiting is a no-op gate; the orchestrator only dispatches here once the
// check-after time has elapsed, so all it does is hand off to the followback
// check.
func (e *Engine) stepWaiting(_ context.Context, _ *state.Document, wf *state.Workflow) stepResult {
	wf.CurrentStep = StepCheckFollowback
	return stepResult{proceed: true}
}

// stepCheckFollowback pages through the target's following list looking for
// the operator. Exhausting the page cap or a lookup failure both fall
// through to cleanup; only a confirmed followback ends the cycle here.
func (e *Engine) stepCheckFollowback(ctx context.Context, _ *state.Document, wf *state.Workflow) stepResult {
	self := e.selfID
	if self == "" {
		id, err := e.api.AuthenticatedUserID(ctx)
		if err != nil {
			e.log.Warn("could not resolve own user id", "workflow", wf.ID, "error", err)
		} else {
			e.selfID = id
			self = id
		}
	}

	found := false
	if self != "" {
		token := ""
		for page := 0; page < maxFollowbackPages; page++ {
			p, err := e.api.GetFollowingPage(ctx, wf.TargetUserID, followPageSize, token)
			if err != nil {
				e.log.Warn("followback check failed", "workflow", wf.ID, "page", page, "error", err)
				break
			}
			for _, id := range p.IDs {
				if id == self {
					found = true
					break
				}
			}
			if found || p.NextToken == "" {
				break
			}
			token = p.NextToken
		}
	}

	if found {
		wf.Outcome = OutcomeFollowedBack
		return stepResult{summary: fmt.Sprintf("@%s followed back; keeping relationship", wf.TargetUsername)}
	}
	wf.CurrentStep = StepCleanup
	return stepResult{summary: fmt.Sprintf("@%s did not follow back; cleaning up", wf.TargetUsername), proceed: true}
}

// stepCleanup reverses the cycle's actions for a target that did not follow
// back: unlike the pinned tweet, delete the reply, unfollow. Each reversal
// is independent and best-effort; protected targets are left entirely alone.
func (e *Engine) stepCleanup(ctx context.Context, doc *state.Document, wf *state.Workflow) stepResult {
	if e.protected.MatchesAny(wf.TargetUsername, wf.TargetUserID) {
		wf.Outcome = OutcomeProtectedKept
		return stepResult{summary: fmt.Sprintf("@%s is protected; keeping relationship as is", wf.TargetUsername)}
	}

	if pinned := wf.Context.PinnedTweetID; pinned != "" && wf.DidAction("liked_pinned") {
		e.attempt(wf, "unliked_pinned", "unlike_pinned_failed", func() error {
			return e.api.Unlike(ctx, pinned)
		})
	}

	if replyID := wf.Context.ReplyTweetID; replyID != "" {
		if err := guard.CheckBudget(guard.ActionDelete, doc, e.limits, e.clock); err != nil {
			e.log.Warn("keeping reply, delete budget blocked", "workflow", wf.ID, "error", err)
		} else if e.attempt(wf, "deleted_reply", "delete_reply_failed", func() error {
			return e.api.Delete(ctx, replyID)
		}) {
			e.record(guard.ActionDelete, "", wf.ID, doc)
		}
	}

	if err := guard.CheckBudget(guard.ActionUnfollow, doc, e.limits, e.clock); err != nil {
		e.log.Warn("keeping follow, unfollow budget blocked", "workflow", wf.ID, "error", err)
	} else if e.attempt(wf, "unfollowed", "unfollow_failed", func() error {
		return e.api.Unfollow(ctx, wf.TargetUserID)
	}) {
		e.record(guard.ActionUnfollow, "", wf.ID, doc)
	}

	if wf.DidAction("unfollowed") {
		wf.Outcome = OutcomeCleanedUp
		return stepResult{summary: fmt.Sprintf("cleaned up @%s", wf.TargetUsername)}
	}
	wf.Outcome = OutcomePartiallyCleanedUp
	return stepResult{summary: fmt.Sprintf("partially cleaned up @%s", wf.TargetUsername)}
}
