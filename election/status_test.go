package election

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseLeader_ReturnsNewestClaim(t *testing.T) {
	now := time.Now().UTC()
	// Already sorted newest-timestamp-first, matching the query parseLeader
	// is fed by ClusterDetail.
	members := []StatusDoc{
		{UUID: "current-leader", Host: "h2", PID: 2, IsLeader: true, Timestamp: now},
		{UUID: "follower", Host: "h3", PID: 3, IsLeader: false, Timestamp: now},
		{UUID: "stale-leader", Host: "h1", PID: 1, IsLeader: true, Timestamp: now.Add(-time.Minute)},
	}

	leader := parseLeader(members)

	if assert.NotNil(t, leader) {
		assert.Equal(t, "current-leader", leader.UUID)
	}
}

func TestParseLeader_NoLeaderReturnsNil(t *testing.T) {
	members := []StatusDoc{
		{UUID: "a", IsLeader: false},
		{UUID: "b", IsLeader: false},
	}

	assert.Nil(t, parseLeader(members))
}

func TestParseLeader_EmptyMembers(t *testing.T) {
	assert.Nil(t, parseLeader(nil))
}
