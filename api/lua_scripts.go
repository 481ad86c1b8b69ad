package api

import "github.com/redis/go-redis/v9"

// BidScript 用於原子性地處理出價
//  KEYS[1] - 拍賣目前價格鍵
//  KEYS[2] - 出價的 stream
//  ARGV[1] - 出價金額
//  ARGV[2] - 出價資訊(base64編碼的msgpack)
//  ARGV[3] - 價格鍵的存活秒數
//  ARGV[4] - 最低加價幅度
//
// 返回值:
//  1  - 出價成功
//  0  - 出價低於目前價格加上最低加價幅度
//  -1 - 價格鍵不存在，需要由呼叫端從資料庫回填後重試
//
// 流程:
//  - 1. 檢查價格鍵是否存在，不存在返回-1
//  - 2. 檢查出價是否達到目前價格加上最低加價幅度，否則返回0
//  - 3. 更新價格鍵並刷新存活時間
//  - 4. 將出價資訊寫入stream
//  - 5. 返回1
var BidScript = redis.NewScript(`
-- 檢查價格鍵是否存在
local exists = redis.call('EXISTS', KEYS[1])
if exists == 0 then
    return -1
end

-- 取得目前價格並檢查加價幅度
local current = tonumber(redis.call('GET', KEYS[1])) or 0
local amount = tonumber(ARGV[1])
local increment = tonumber(ARGV[4]) or 1

if amount < current + increment then
    return 0
end

-- 更新目前價格
redis.call('SET', KEYS[1], amount)
redis.call('EXPIRE', KEYS[1], ARGV[3])

-- 將出價資訊寫入 stream
redis.call('XADD', KEYS[2], '*', 'data', ARGV[2])

return 1
`)
