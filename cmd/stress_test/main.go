package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/rl1809/wip-inventory/internal/adapter/handler"
)

const (
	operation    = "90"
	fromLocation = "FLOOR"
)

var toLocations = []string{"RECEIVING", "QC", "SHIPPING"}

func main() {
	addr := flag.String("addr", "127.0.0.1:50051", "gRPC address of the inventory server")
	initialStock := flag.Int("stock", 20, "units seeded at FLOOR")
	totalRequests := flag.Int("requests", 50, "concurrent transfer requests")
	perRequest := flag.Int("quantity", 1, "units requested per transfer")
	flag.Parse()

	ctx := context.Background()
	conn, err := grpc.NewClient(*addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("failed to dial: %v", err)
	}
	defer conn.Close()

	partID := "stress-" + uuid.NewString()[:8]
	seed, _ := structpb.NewStruct(map[string]any{
		"part_id":   partID,
		"operation": operation,
		"location":  fromLocation,
		"quantity":  *initialStock,
		"user":      "stress",
	})
	if _, err := handler.Invoke(ctx, conn, "AddStock", seed); err != nil {
		log.Fatalf("failed to seed stock: %v", err)
	}

	// Counters
	var successCount, insufficientCount, failCount atomic.Int32
	var moved atomic.Int64

	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < *totalRequests; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			req, _ := structpb.NewStruct(map[string]any{
				"part_id":       partID,
				"operation":     operation,
				"from_location": fromLocation,
				"to_location":   toLocations[n%len(toLocations)],
				"quantity":      *perRequest,
				"requested_by":  fmt.Sprintf("user-%d", n),
			})
			out, err := handler.Invoke(ctx, conn, "Transfer", req)
			switch {
			case err == nil:
				successCount.Add(1)
				moved.Add(int64(out.GetFields()["transferred_quantity"].GetNumberValue()))
			case status.Code(err) == codes.FailedPrecondition:
				insufficientCount.Add(1)
			default:
				failCount.Add(1)
				log.Printf("transfer %d failed: %v", n, err)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Part:             %s\n", partID)
	fmt.Printf("Initial Stock:    %d\n", *initialStock)
	fmt.Printf("Total Requests:   %d\n", *totalRequests)
	fmt.Printf("Successful:       %d\n", successCount.Load())
	fmt.Printf("Insufficient:     %d\n", insufficientCount.Load())
	fmt.Printf("Failed:           %d\n", failCount.Load())
	fmt.Printf("Units Moved:      %d\n", moved.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	// Verify conservation across locations
	search, _ := structpb.NewStruct(map[string]any{"part_id": partID, "operation": operation})
	out, err := handler.Invoke(ctx, conn, "Search", search)
	if err != nil {
		log.Fatalf("failed to read back inventory: %v", err)
	}

	total, source := 0, -1
	for _, v := range out.GetFields()["records"].GetListValue().GetValues() {
		rec := v.GetStructValue().GetFields()
		qty := int(rec["quantity"].GetNumberValue())
		if qty < 0 {
			fmt.Printf("FAIL: negative quantity at %s\n", rec["location"].GetStringValue())
		}
		if rec["location"].GetStringValue() == fromLocation {
			source = qty
		}
		total += qty
	}

	if total == *initialStock {
		fmt.Printf("PASS: total quantity conserved (%d)\n", total)
	} else {
		fmt.Printf("FAIL: expected total %d, got %d\n", *initialStock, total)
	}
	if expected := *initialStock - int(moved.Load()); source == expected {
		fmt.Printf("PASS: %s holds %d\n", fromLocation, source)
	} else {
		fmt.Printf("FAIL: expected %s=%d, got %d\n", fromLocation, expected, source)
	}
}
