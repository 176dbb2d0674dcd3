package effects

import (
	"intranet/internal/domain/notification"
)

// Domain names a family of cached reads that a notification can make stale.
type Domain string

const (
	DomainEvents          Domain = "events"
	DomainJobs            Domain = "jobs"
	DomainFeed            Domain = "feed"
	DomainSocial          Domain = "social"
	DomainPosts           Domain = "posts"
	DomainFlaggedContent  Domain = "flagged_content"
	DomainAdmin           Domain = "admin"
	DomainModerationQueue Domain = "moderation_queue"
	DomainProfile         Domain = "profile"
	DomainUsers           Domain = "users"

	// DomainEntity stands for the single entity referenced by the notification metadata.
	DomainEntity Domain = "entity"
)

// invalidationTable is reviewed by hand; a test fails when a declared type is missing.
var invalidationTable = map[notification.Type][]Domain{
	notification.TypeEventCreated:   {DomainEvents},
	notification.TypeEventUpdated:   {DomainEvents, DomainEntity},
	notification.TypeEventCancelled: {DomainEvents, DomainEntity},
	notification.TypeEventReminder:  {DomainEvents},

	notification.TypeJobPosted:              {DomainJobs},
	notification.TypeJobApplicationReceived: {DomainJobs, DomainEntity},
	notification.TypeJobApplicationStatus:   {DomainJobs, DomainEntity},

	notification.TypePostLiked:      {DomainEntity, DomainFeed, DomainSocial},
	notification.TypePostCommented:  {DomainEntity, DomainFeed, DomainSocial, DomainPosts},
	notification.TypeCommentReplied: {DomainEntity, DomainSocial, DomainPosts},
	notification.TypeMention:        {DomainEntity, DomainFeed, DomainSocial},
	notification.TypeUserFollowed:   {DomainSocial, DomainUsers},
	notification.TypePostShared:     {DomainEntity, DomainFeed, DomainSocial},

	notification.TypeContentFlagged:    {DomainFlaggedContent, DomainAdmin, DomainModerationQueue},
	notification.TypeContentRemoved:    {DomainFlaggedContent, DomainAdmin, DomainFeed, DomainEntity},
	notification.TypeModerationWarning: {DomainFlaggedContent, DomainAdmin, DomainProfile},
	notification.TypeReportResolved:    {DomainFlaggedContent, DomainAdmin, DomainModerationQueue},

	notification.TypeAccountVerified:  {DomainProfile},
	notification.TypeRoleChanged:      {DomainProfile, DomainAdmin},
	notification.TypeProfileUpdated:   {DomainProfile},
	notification.TypeAccountSuspended: {DomainProfile},
}

// DomainsFor returns the domains invalidated by a type. Unmapped types get nil.
func DomainsFor(t notification.Type) []Domain {
	return invalidationTable[t]
}

// Key is one cache entry family to invalidate.
type Key struct {
	Domain     Domain
	EntityType string
	EntityID   string
}

func (k Key) String() string {
	if k.Domain == DomainEntity {
		return string(k.Domain) + ":" + k.EntityType + ":" + k.EntityID
	}
	return string(k.Domain)
}

// KeysFor expands the table entry of n. The entity domain is skipped when the
// metadata carries no entity reference.
func KeysFor(n notification.Notification) []Key {
	domains := DomainsFor(n.Type)
	if len(domains) == 0 {
		return nil
	}

	keys := make([]Key, 0, len(domains))
	for _, d := range domains {
		if d != DomainEntity {
			keys = append(keys, Key{Domain: d})
			continue
		}
		entityType, entityID := n.Metadata.Entity()
		if entityID == "" {
			continue
		}
		keys = append(keys, Key{Domain: DomainEntity, EntityType: entityType, EntityID: entityID})
	}
	return keys
}
