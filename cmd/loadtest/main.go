package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// Result 记录单次请求的 HTTP 结果，便于聚合统计。
type Result struct {
	Status int
	Body   string
	Err    error
}

func main() {
	baseURL := flag.String("base", "http://localhost:8080", "server base url")
	tableID := flag.Uint("table", 1, "dining table id to contend on")
	statusCheck := flag.Bool("status", true, "check table status after test")

	// 互斥测试参数：N 个顾客并发抢同一张桌
	nCustomers := flag.Int("customers", 100, "distinct customers")
	concurrency := flag.Int("c", 50, "max concurrency")
	flag.Parse()

	client := &http.Client{Timeout: 10 * time.Second}

	// 同桌并发建单：预期恰好 1 个 201，其余全部 409 TABLE_OCCUPIED
	fmt.Printf("start table contention test: table=%d customers=%d concurrency=%d\n",
		*tableID, *nCustomers, *concurrency)
	results := runCreate(client, *baseURL, *tableID, *nCustomers, *concurrency)
	printSummary("table_contention", results)

	if *statusCheck {
		if err := printTableStatus(client, *baseURL, *tableID); err != nil {
			fmt.Println("status check err:", err)
		}
	}
}

func runCreate(client *http.Client, baseURL string, tableID uint, nCustomers, concurrency int) []Result {
	type Item struct {
		FoodID   uint   `json:"food_id"`
		Name     string `json:"name"`
		Quantity int    `json:"quantity"`
		Price    int64  `json:"price"`
	}
	type Req struct {
		CustomerName  string `json:"customer_name"`
		CustomerPhone string `json:"customer_phone"`
		TableID       uint   `json:"table_id"`
		Items         []Item `json:"items"`
	}

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	results := make([]Result, nCustomers)

	for i := 0; i < nCustomers; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()

			req := Req{
				CustomerName:  fmt.Sprintf("customer-%d", idx+1),
				CustomerPhone: fmt.Sprintf("0812%08d", idx+1),
				TableID:       tableID,
				Items: []Item{
					{FoodID: 1, Name: "Nasi Goreng", Quantity: 2, Price: 15000},
					{FoodID: 2, Name: "Es Teh", Quantity: 1, Price: 20000},
				},
			}
			results[idx] = createOnce(client, baseURL, req)
		}(i)
	}

	wg.Wait()
	return results
}

func createOnce(client *http.Client, baseURL string, req any) Result {
	b, _ := json.Marshal(req)
	url := fmt.Sprintf("%s/api/orders", baseURL)
	httpReq, _ := http.NewRequest(http.MethodPost, url, bytes.NewReader(b))
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return Result{Err: err}
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return Result{Status: resp.StatusCode, Body: string(body)}
}

// printSummary 聚合输出不同状态码分布。互斥成立时 201 恰好为 1。
func printSummary(name string, results []Result) {
	count := map[int]int{}
	errCount := 0
	for _, r := range results {
		if r.Err != nil {
			errCount++
			continue
		}
		count[r.Status]++
	}
	fmt.Printf("[%s] http status summary:\n", name)
	for _, code := range []int{201, 400, 404, 409, 429, 500} {
		if count[code] > 0 {
			fmt.Printf("  %d -> %d\n", code, count[code])
		}
	}
	if errCount > 0 {
		fmt.Printf("  errors -> %d\n", errCount)
	}
}

func printTableStatus(client *http.Client, baseURL string, tableID uint) error {
	resp, err := client.Get(fmt.Sprintf("%s/api/tables/%d/status", baseURL, tableID))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	fmt.Println("final table status:", string(body))
	return nil
}
