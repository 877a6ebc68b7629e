package services

import (
	"context"
	"fmt"

	"maskflow/internal/store"
)

// ImportResult counts what an import created.
type ImportResult struct {
	Connections int
	Workflows   int
}

// Import creates every definition of a bundle for ownerID, connections
// first. It stops at the first invalid definition.
func Import(ctx context.Context, conns *ConnectionService, wfs *WorkflowService, ownerID string, b *store.Bundle) (ImportResult, error) {
	var res ImportResult
	for _, bc := range b.Connections {
		password, err := bc.ResolvePassword()
		if err != nil {
			return res, err
		}
		_, err = conns.Create(ctx, ownerID, ConnectionInput{
			ID:       bc.ID,
			Name:     bc.Name,
			Kind:     string(bc.Kind),
			Host:     bc.Host,
			Port:     bc.Port,
			Database: bc.Database,
			Username: bc.Username,
			Password: password,
			Params:   bc.Params,
		})
		if err != nil {
			return res, fmt.Errorf("import connection %s: %w", bc.ID, err)
		}
		res.Connections++
	}
	for _, w := range b.Workflows {
		_, err := wfs.Create(ctx, ownerID, WorkflowInput{
			ID:                      w.ID,
			Name:                    w.Name,
			Description:             w.Description,
			SourceConnectionID:      w.SourceConnectionID,
			DestinationConnectionID: w.DestinationConnectionID,
			TableMappings:           w.TableMappings,
		})
		if err != nil {
			return res, fmt.Errorf("import workflow %s: %w", w.ID, err)
		}
		res.Workflows++
	}
	return res, nil
}
