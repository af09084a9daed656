//go:build protogen

package walklimit

import (
	"context"
	"time"

	"github.com/waggytails/pawsched/libs/grpcx"
	walklimitv1 "github.com/waggytails/pawsched/protos/gen/walklimit/v1"
	"github.com/waggytails/pawsched/services/availability-service/internal/model"
)

// GRPCChecker delegates walk-limit checks to the sitting service once its
// proto surface is generated.
type GRPCChecker struct {
	client walklimitv1.WalkLimitServiceClient
}

func NewGRPCChecker(addr string) (*GRPCChecker, error) {
	conn, err := grpcx.Dial(context.Background(), addr, grpcx.DialOptions{Timeout: 3 * time.Second})
	if err != nil {
		return nil, err
	}
	return &GRPCChecker{client: walklimitv1.NewWalkLimitServiceClient(conn)}, nil
}

func (c *GRPCChecker) Check(ctx context.Context, date time.Time) (model.WalkLimitStatus, error) {
	resp, err := c.client.Check(ctx, &walklimitv1.CheckRequest{
		Date: date.Format("2006-01-02"),
	})
	if err != nil {
		return model.WalkLimitStatus{}, err
	}
	return model.WalkLimitStatus{
		LimitReached: resp.GetLimitReached(),
		CurrentCount: int(resp.GetCurrentCount()),
		Limit:        int(resp.GetLimit()),
	}, nil
}
