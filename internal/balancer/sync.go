package balancer

import (
	"github.com/SamirCosta/RedeSocial/internal/cluster"
	"github.com/SamirCosta/RedeSocial/pkg/models"
)

// RegisterReducedSync installs the balancer's control-plane surface: it
// answers discovery traffic through the shared Discovery handlers, never
// claims the coordinator role, and acknowledges election, clock-sync and
// replication messages without acting on them.
func RegisterReducedSync(comm *cluster.Comm) {
	comm.Handle(models.ActionIsCoordinator, func(payload []byte) map[string]any {
		return map[string]any{
			"success":       true,
			"isCoordinator": false,
		}
	})

	ack := func(payload []byte) map[string]any { return models.OK() }
	for _, action := range []string{
		models.ActionElection,
		models.ActionElectionResponse,
		models.ActionCoordinator,
		models.ActionCoordinatorHeartbeat,
		models.ActionCoordinatorPing,
		models.ActionTimeRequest,
		models.ActionTimeResponse,
		models.ActionClockAdjustment,
		models.ActionDataReplication,
	} {
		comm.Handle(action, ack)
	}
}
