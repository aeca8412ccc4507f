package mssql

import (
	"context"

	"github.com/ekaya-inc/ekaya-chatbi/pkg/adapters/datasource"
)

func init() {
	datasource.Register(datasource.DatasourceAdapterRegistration{
		Info: datasource.DatasourceAdapterInfo{
			Type:        "mssql",
			DisplayName: "Microsoft SQL Server",
			Description: "SQL Server 2016+, Azure SQL Database",
		},
		EngineFactory: func(ctx context.Context, config map[string]any, connMgr *datasource.ConnectionManager, dataSource string) (datasource.ChartEngine, error) {
			cfg, err := FromMap(config)
			if err != nil {
				return nil, err
			}
			return NewEngine(ctx, cfg, connMgr, dataSource)
		},
	})
}
