package snowflake

import (
	"errors"
	"strconv"
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	node *snowflake.Node
	once sync.Once

	errInvalidMachineID   = errors.New("invalid snowflake machine id")
	errInvalidDataCenter  = errors.New("invalid snowflake datacenter id")
	errGeneratorUninitial = errors.New("snowflake generator is not initialized")
	errInvalidID          = errors.New("invalid snowflake id")
)

// Init 初始化全局节点，重复调用只有第一次生效。
func Init(machineID, dataCenterID int64) error {
	var initErr error

	once.Do(func() {
		if machineID < 0 || machineID > 31 {
			initErr = errInvalidMachineID
			return
		}
		if dataCenterID < 0 || dataCenterID > 31 {
			initErr = errInvalidDataCenter
			return
		}
		nodeID := (dataCenterID << 5) | machineID // datacenterID 和 machineID 都是 0~31

		var err error
		node, err = snowflake.NewNode(nodeID)
		if err != nil {
			initErr = err
			return
		}
	})

	return initErr
}

func NextID() (int64, error) {
	if node == nil {
		return 0, errGeneratorUninitial
	}

	return node.Generate().Int64(), nil
}

// ParseID 解析路径或请求体中的字符串 ID。
func ParseID(s string) (int64, error) {
	id, err := snowflake.ParseString(s)
	if err != nil || id.Int64() <= 0 {
		return 0, errInvalidID
	}
	return id.Int64(), nil
}

// FormatID 输出给前端的字符串 ID，避免 JS 精度丢失。
func FormatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
