package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[SubmitArtifactMessage]  = (*SubmitArtifactCommand)(nil)
	_ gocmd.Commander[ApproveMessage]         = (*ApproveCommand)(nil)
	_ gocmd.Commander[RequestRevisionMessage] = (*RequestRevisionCommand)(nil)
	_ gocmd.Commander[SubmitRevisionMessage]  = (*SubmitRevisionCommand)(nil)
	_ gocmd.Commander[CancelMessage]          = (*CancelCommand)(nil)
	_ gocmd.Commander[EditEntriesMessage]     = (*EditEntriesCommand)(nil)
	_ gocmd.Commander[RunSweepMessage]        = (*RunSweepCommand)(nil)
)
